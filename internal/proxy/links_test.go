package proxy

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewSigner_RequiresSecret(t *testing.T) {
	_, err := NewSigner(nil, "files.example.com")
	if !errors.Is(err, ErrMissingSecret) {
		t.Errorf("error = %v, want %v", err, ErrMissingSecret)
	}
}

func TestSignAndResolve(t *testing.T) {
	signer, err := NewSigner([]byte("test-secret"), "files.example.com")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	token, err := signer.Sign("movie.mp4", "https://store.example.com/assets/42")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	claims, err := signer.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if claims.AssetName != "movie.mp4" {
		t.Errorf("AssetName = %s, want movie.mp4", claims.AssetName)
	}
	if claims.AssetURL != "https://store.example.com/assets/42" {
		t.Errorf("AssetURL = %s, want the store URL", claims.AssetURL)
	}
	if claims.Issuer != "release-relay" {
		t.Errorf("Issuer = %s, want release-relay", claims.Issuer)
	}
}

func TestResolve_WrongSecret(t *testing.T) {
	signer, _ := NewSigner([]byte("secret-a"), "files.example.com")
	other, _ := NewSigner([]byte("secret-b"), "files.example.com")

	token, err := signer.Sign("movie.mp4", "https://store.example.com/assets/42")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	_, err = other.Resolve(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestResolve_Expired(t *testing.T) {
	signer, _ := NewSigner([]byte("test-secret"), "files.example.com")
	signer.now = func() time.Time {
		return time.Now().Add(-TokenLifetime - time.Hour)
	}

	token, err := signer.Sign("movie.mp4", "https://store.example.com/assets/42")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	_, err = signer.Resolve(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestResolve_Malformed(t *testing.T) {
	signer, _ := NewSigner([]byte("test-secret"), "files.example.com")

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := signer.Resolve(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Resolve(%q) error = %v, want %v", token, err, ErrInvalidToken)
		}
	}
}

func TestWrapURL_Format(t *testing.T) {
	signer, _ := NewSigner([]byte("test-secret"), "files.example.com")

	link, err := signer.WrapURL("my movie.mp4", "https://store.example.com/assets/42")
	if err != nil {
		t.Fatalf("WrapURL: %v", err)
	}

	if !strings.HasPrefix(link, "https://files.example.com/file/my_movie.mp4/") {
		t.Errorf("link = %s, want https://files.example.com/file/my_movie.mp4/<token>", link)
	}

	token := link[strings.LastIndex(link, "/")+1:]
	claims, err := signer.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve token from link: %v", err)
	}
	if claims.AssetName != "my movie.mp4" {
		t.Errorf("AssetName = %s, want my movie.mp4", claims.AssetName)
	}
}
