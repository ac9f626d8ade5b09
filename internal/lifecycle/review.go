package lifecycle

import "github.com/mmeshcher/ondeir/internal/model"

// ReviewFlow ведёт двухшаговую оценку доставки: сначала курьер, затем платформа.
// Шаг курьера пропускается, если курьер не назначался.
type ReviewFlow struct {
	steps []model.ReviewTarget
	pos   int
}

// NewReviewFlow создаёт поток оценки и пропускает уже оценённые шаги.
func NewReviewFlow(hasCourier bool, reviewed map[model.ReviewTarget]bool) *ReviewFlow {
	f := &ReviewFlow{steps: []model.ReviewTarget{model.ReviewTargetPlatform}}
	if hasCourier {
		f.steps = []model.ReviewTarget{model.ReviewTargetDriver, model.ReviewTargetPlatform}
	}
	for f.pos < len(f.steps) && reviewed[f.steps[f.pos]] {
		f.pos++
	}
	return f
}

// Current возвращает текущий шаг или false, если оценка завершена.
func (f *ReviewFlow) Current() (model.ReviewTarget, bool) {
	if f.pos >= len(f.steps) {
		return "", false
	}
	return f.steps[f.pos], true
}

// Advance переходит к следующему шагу.
func (f *ReviewFlow) Advance() {
	if f.pos < len(f.steps) {
		f.pos++
	}
}

// Remaining возвращает ещё не пройденные шаги в порядке показа.
func (f *ReviewFlow) Remaining() []model.ReviewTarget {
	if f.pos >= len(f.steps) {
		return nil
	}
	return append([]model.ReviewTarget(nil), f.steps[f.pos:]...)
}

// Done сообщает, пройдены ли все шаги.
func (f *ReviewFlow) Done() bool {
	return f.pos >= len(f.steps)
}
