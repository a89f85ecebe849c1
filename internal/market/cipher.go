package market

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	saltMagic = "Salted__"
	saltLen   = 8
	keyLen    = 32
)

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// deriveKeyIV is OpenSSL's EVP_BytesToKey with MD5 and a single round:
// D_i = MD5(D_{i-1} || passphrase || salt) until 48 bytes of key and IV exist.
func deriveKeyIV(passphrase, salt []byte) (key, iv []byte) {
	var out, prev []byte
	for len(out) < keyLen+aes.BlockSize {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:keyLen], out[keyLen : keyLen+aes.BlockSize]
}

func pkcs7Pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrMalformedCiphertext
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, ErrMalformedCiphertext
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrMalformedCiphertext
		}
	}
	return data[:len(data)-n], nil
}

// Encrypt produces base64("Salted__" || salt || AES-256-CBC(plaintext)), the framing
// `openssl enc -aes-256-cbc -md md5` and CryptoJS.AES.encrypt emit.
func Encrypt(passphrase, plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return encryptWithSalt(passphrase, plaintext, salt)
}

func encryptWithSalt(passphrase, plaintext string, salt []byte) (string, error) {
	key, iv := deriveKeyIV([]byte(passphrase), salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext))
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	out := make([]byte, 0, len(saltMagic)+saltLen+len(ct))
	out = append(out, saltMagic...)
	out = append(out, salt...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func Decrypt(passphrase, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(raw) < len(saltMagic)+saltLen+aes.BlockSize || string(raw[:len(saltMagic)]) != saltMagic {
		return "", ErrMalformedCiphertext
	}

	salt := raw[len(saltMagic) : len(saltMagic)+saltLen]
	ct := raw[len(saltMagic)+saltLen:]
	if len(ct)%aes.BlockSize != 0 {
		return "", ErrMalformedCiphertext
	}

	key, iv := deriveKeyIV([]byte(passphrase), salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	pt, err = pkcs7Unpad(pt)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
