package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/learning-center-api/pkg/config"
)

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "secret", Name: "learning_center", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=learning_center sslmode=disable application_name=learning-center-api", DSN(cfg))
}

func TestDSNQuotesPassword(t *testing.T) {
	cases := map[string]string{
		"":           "''",
		"two words":  "'two words'",
		`it's`:       `'it\'s'`,
		`back\slash`: `'back\\slash'`,
	}
	for in, want := range cases {
		assert.Equal(t, want, quote(in), in)
	}
}
