package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestValidateToken(t *testing.T) {
	t.Run("returns the document of a valid token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/auth/validate" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer some-token" {
				t.Errorf("authorization = %q", r.Header.Get("Authorization"))
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"valid":true,"document":"04781722903"}`))
		}))
		defer srv.Close()

		c := NewAuthClient(srv.URL, 5*time.Second, zap.NewNop())
		document, err := c.ValidateToken(context.Background(), "some-token")
		if err != nil {
			t.Fatal(err)
		}
		if document != "04781722903" {
			t.Errorf("document = %q", document)
		}
	})

	t.Run("rejects an invalid token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewAuthClient(srv.URL, 5*time.Second, zap.NewNop())
		if _, err := c.ValidateToken(context.Background(), "bad-token"); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("rejects a response without a document", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"valid":false}`))
		}))
		defer srv.Close()

		c := NewAuthClient(srv.URL, 5*time.Second, zap.NewNop())
		if _, err := c.ValidateToken(context.Background(), "some-token"); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestExtractDocumentFromToken(t *testing.T) {
	t.Run("reads the document claim", func(t *testing.T) {
		token := signedToken(t, jwt.MapClaims{"document": "04781722903", "exp": time.Now().Add(time.Hour).Unix()})
		document, err := ExtractDocumentFromToken(token)
		if err != nil {
			t.Fatal(err)
		}
		if document != "04781722903" {
			t.Errorf("document = %q", document)
		}
	})

	t.Run("rejects a token without the claim", func(t *testing.T) {
		token := signedToken(t, jwt.MapClaims{"sub": "someone"})
		if _, err := ExtractDocumentFromToken(token); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := ExtractDocumentFromToken("not.a.jwt"); err == nil {
			t.Fatal("expected an error")
		}
	})
}
