// Package validation содержит функции проверки и генерации кодов подтверждения доставки.
package validation

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"unicode"
)

// DeliveryCodeLength задаёт длину кода подтверждения доставки, включая контрольную цифру.
const DeliveryCodeLength = 4

// IsValidDeliveryCode проверяет код подтверждения доставки по алгоритму Луна.
func IsValidDeliveryCode(code string) bool {
	if len(code) != DeliveryCodeLength {
		return false
	}
	return luhnSum(code, false) == 0
}

// GenerateDeliveryCode создаёт код подтверждения доставки: случайные цифры и контрольная цифра Луна.
func GenerateDeliveryCode() (string, error) {
	body := make([]byte, 0, DeliveryCodeLength)
	for i := 0; i < DeliveryCodeLength-1; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		body = append(body, byte('0'+n.Int64()))
	}

	sum := luhnSum(string(body), true)
	check := (10 - sum) % 10

	return string(body) + strconv.Itoa(check), nil
}

// luhnSum возвращает сумму Луна по модулю 10 или -1 для нецифровых строк.
// doubleFirst указывает, удваивается ли последняя цифра строки.
func luhnSum(number string, doubleFirst bool) int {
	if number == "" {
		return -1
	}

	sum := 0
	double := doubleFirst

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return -1
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum % 10
}
