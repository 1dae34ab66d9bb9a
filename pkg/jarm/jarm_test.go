package jarm

import (
	"context"
	"crypto"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"mdljarm/pkg/coreerr"
)

// fakeJose is a minimal hostctx.JoseContext stub: compact JWE/JWS tokens in
// these tests are not cryptographically real, so decrypt/verify just strip a
// fixed marker rather than performing actual JOSE operations.
type fakeJose struct {
	decryptErr error
	plaintext  []byte
	verifyErr  error
	claims     map[string]any
}

func (f *fakeJose) EncryptCompact(context.Context, string, string, crypto.PublicKey, []byte) (string, error) {
	return "", nil
}
func (f *fakeJose) DecryptCompact(context.Context, string, crypto.PrivateKey) ([]byte, error) {
	return f.plaintext, f.decryptErr
}
func (f *fakeJose) SignJWT(context.Context, string, crypto.PrivateKey, map[string]any) (string, error) {
	return "", nil
}
func (f *fakeJose) VerifyJWT(context.Context, string, crypto.PublicKey) (map[string]any, error) {
	return f.claims, f.verifyErr
}
func (f *fakeJose) ImportJWK(context.Context, []byte) (any, error) { return nil, nil }

type fakeAuthRequests struct {
	params map[string]any
	err    error
}

func (f *fakeAuthRequests) GetAuthRequestParams(context.Context, string) (map[string]any, error) {
	return f.params, f.err
}

func b64(v map[string]any) string {
	raw, _ := json.Marshal(v)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func compactJWS(header, claims map[string]any) string {
	return b64(header) + "." + b64(claims) + ".sig"
}

func compactJWE(header map[string]any, ciphertextSegments int) string {
	parts := []string{b64(header)}
	for i := 0; i < ciphertextSegments; i++ {
		parts = append(parts, "x")
	}
	return strings.Join(parts, ".")
}

func TestProcessRejectsNeitherJWEnorJWS(t *testing.T) {
	_, err := Process(context.Background(), "not-an-envelope", Options{})
	if kind, _ := coreerr.KindOf(err); kind != coreerr.KindNotSignedOrEncrypted {
		t.Fatalf("Process() kind = %v, want %v", kind, coreerr.KindNotSignedOrEncrypted)
	}
}

func TestProcessSignedOnly(t *testing.T) {
	claims := map[string]any{"iss": "https://verifier.example", "aud": "wallet", "exp": 123.0, "state": "abc"}
	jws := compactJWS(map[string]any{"alg": "ES256"}, claims)

	jose := &fakeJose{claims: claims}
	authReq := &fakeAuthRequests{params: map[string]any{"state": "abc"}}
	opts := Options{
		Jose:                   jose,
		ResolveVerificationKey: func(context.Context, map[string]any) (any, error) { return "key", nil },
		AuthRequests:           authReq,
	}

	result, err := Process(context.Background(), jws, opts)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Type != TypeSigned {
		t.Errorf("Type = %q, want %q", result.Type, TypeSigned)
	}
	if result.AuthResponseParams["state"] != "abc" {
		t.Errorf("AuthResponseParams[state] = %v, want abc", result.AuthResponseParams["state"])
	}
}

func TestProcessSignedRequiresStrictClaims(t *testing.T) {
	claims := map[string]any{"state": "abc"} // missing iss/aud/exp
	jws := compactJWS(map[string]any{"alg": "ES256"}, claims)

	jose := &fakeJose{claims: claims}
	opts := Options{
		Jose:                   jose,
		ResolveVerificationKey: func(context.Context, map[string]any) (any, error) { return "key", nil },
	}

	_, err := Process(context.Background(), jws, opts)
	if kind, _ := coreerr.KindOf(err); kind != coreerr.KindMissingField {
		t.Fatalf("Process() kind = %v, want %v", kind, coreerr.KindMissingField)
	}
}

func TestProcessEncryptedPlainJSON(t *testing.T) {
	plaintext := map[string]any{"vp_token": "token", "state": "abc"}
	raw, _ := json.Marshal(plaintext)
	jwe := compactJWE(map[string]any{"alg": "ECDH-ES", "kid": "reader-1"}, 4)

	jose := &fakeJose{plaintext: raw}
	authReq := &fakeAuthRequests{params: map[string]any{"state": "abc"}}
	opts := Options{
		Jose:                 jose,
		ResolveDecryptionKey: func(context.Context, map[string]any) (any, error) { return "key", nil },
		AuthRequests:         authReq,
	}

	result, err := Process(context.Background(), jwe, opts)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Type != TypeEncrypted {
		t.Errorf("Type = %q, want %q", result.Type, TypeEncrypted)
	}
	if result.AuthResponseParams["vp_token"] != "token" {
		t.Errorf("AuthResponseParams[vp_token] = %v, want token", result.AuthResponseParams["vp_token"])
	}
}

func TestProcessSignedThenEncrypted(t *testing.T) {
	claims := map[string]any{"iss": "https://verifier.example", "aud": "wallet", "exp": 123.0, "state": "abc"}
	innerJWS := compactJWS(map[string]any{"alg": "ES256"}, claims)
	jwe := compactJWE(map[string]any{"alg": "ECDH-ES", "kid": "reader-1"}, 4)

	jose := &fakeJose{plaintext: []byte(innerJWS), claims: claims}
	authReq := &fakeAuthRequests{params: map[string]any{"state": "abc"}}
	opts := Options{
		Jose:                   jose,
		ResolveDecryptionKey:   func(context.Context, map[string]any) (any, error) { return "key", nil },
		ResolveVerificationKey: func(context.Context, map[string]any) (any, error) { return "key", nil },
		AuthRequests:           authReq,
	}

	result, err := Process(context.Background(), jwe, opts)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Type != TypeSignedEncrypted {
		t.Errorf("Type = %q, want %q", result.Type, TypeSignedEncrypted)
	}
}

func TestProcessReceivedErrorResponse(t *testing.T) {
	claims := map[string]any{"error": "access_denied", "error_description": "user declined", "state": "abc"}
	jws := compactJWS(map[string]any{"alg": "ES256"}, claims)

	jose := &fakeJose{claims: map[string]any{
		"iss": "https://verifier.example", "aud": "wallet", "exp": 123.0,
		"error": "access_denied", "error_description": "user declined", "state": "abc",
	}}
	opts := Options{
		Jose:                   jose,
		ResolveVerificationKey: func(context.Context, map[string]any) (any, error) { return "key", nil },
		AuthRequests:           &fakeAuthRequests{params: map[string]any{"state": "abc"}},
	}

	_, err := Process(context.Background(), jws, opts)
	if kind, _ := coreerr.KindOf(err); kind != coreerr.KindReceivedErrorResponse {
		t.Fatalf("Process() kind = %v, want %v", kind, coreerr.KindReceivedErrorResponse)
	}
}

func TestProcessStateMismatch(t *testing.T) {
	claims := map[string]any{"iss": "https://verifier.example", "aud": "wallet", "exp": 123.0, "state": "abc"}
	jws := compactJWS(map[string]any{"alg": "ES256"}, claims)

	jose := &fakeJose{claims: claims}
	opts := Options{
		Jose:                   jose,
		ResolveVerificationKey: func(context.Context, map[string]any) (any, error) { return "key", nil },
		AuthRequests:           &fakeAuthRequests{params: map[string]any{"state": "different"}},
	}

	_, err := Process(context.Background(), jws, opts)
	if kind, _ := coreerr.KindOf(err); kind != coreerr.KindStateMismatch {
		t.Fatalf("Process() kind = %v, want %v", kind, coreerr.KindStateMismatch)
	}
}

func TestProcessMissingDecryptionKeyResolver(t *testing.T) {
	jwe := compactJWE(map[string]any{"alg": "ECDH-ES"}, 4)
	_, err := Process(context.Background(), jwe, Options{Jose: &fakeJose{}})
	if kind, _ := coreerr.KindOf(err); kind != coreerr.KindMissingField {
		t.Fatalf("Process() kind = %v, want %v", kind, coreerr.KindMissingField)
	}
}
