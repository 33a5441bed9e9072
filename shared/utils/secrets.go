package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretsDir — каталог Docker Secrets. Переменная, чтобы тесты могли подменить путь.
var SecretsDir = "/run/secrets"

// ReadSecret читает секрет из файла в каталоге Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := filepath.Join(SecretsDir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// ReadSecretOrEnv читает секрет из файла, а если файла нет — из переменной окружения.
// Удобно для локального запуска без Docker.
func ReadSecretOrEnv(secretName, envKey string) (string, error) {
	secret, err := ReadSecret(secretName)
	if err == nil {
		return secret, nil
	}
	if value := strings.TrimSpace(os.Getenv(envKey)); value != "" {
		return value, nil
	}
	return "", err
}
