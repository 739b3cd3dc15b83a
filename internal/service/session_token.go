package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const sessionTokenBytes = 32

// newSessionToken: timestamp en milisegundos + 32 bytes aleatorios, base64url sin padding.
func newSessionToken(now time.Time) (string, error) {
	buf := make([]byte, 8+sessionTokenBytes)
	binary.BigEndian.PutUint64(buf[:8], uint64(now.UnixMilli()))
	if _, err := rand.Read(buf[8:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashSessionToken es lo que se guarda en sessions.token; el token en claro solo vive en el cache local.
func hashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
