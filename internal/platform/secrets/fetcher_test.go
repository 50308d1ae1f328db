package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubSecretClient struct {
	access func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
	calls  int
	closed bool
}

func (s *stubSecretClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls++
	return s.access(ctx, req)
}

func (s *stubSecretClient) Close() error {
	s.closed = true
	return nil
}

func payload(value string) *secretmanagerpb.AccessSecretVersionResponse {
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}
}

func TestResolveFetchesAndCaches(t *testing.T) {
	client := &stubSecretClient{
		access: func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			if req.Name != "projects/demo/secrets/genai-key/versions/latest" {
				t.Errorf("unexpected resource name %q", req.Name)
			}
			return payload("the-key"), nil
		},
	}

	f, err := NewFetcher(context.Background(),
		WithDefaultProject("demo"),
		WithSecretManagerClient(client),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		value, err := f.Resolve(context.Background(), "secret://genai-key")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if value != "the-key" {
			t.Fatalf("unexpected value %q", value)
		}
	}
	if client.calls != 1 {
		t.Fatalf("expected one remote call, got %d", client.calls)
	}
}

func TestResolveHonoursVersionAndProjectOverride(t *testing.T) {
	client := &stubSecretClient{
		access: func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			if req.Name != "projects/other/secrets/genai-key/versions/3" {
				t.Errorf("unexpected resource name %q", req.Name)
			}
			return payload("v3"), nil
		},
	}

	f, err := NewFetcher(context.Background(),
		WithDefaultProject("demo"),
		WithSecretManagerClient(client),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	value, err := f.Resolve(context.Background(), "secret://genai-key?version=3&project=other")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "v3" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestResolveFallsBackOnPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(fallback, []byte("secret://genai-key=local-value\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	client := &stubSecretClient{
		access: func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			return nil, status.Error(codes.PermissionDenied, "denied")
		},
	}

	f, err := NewFetcher(context.Background(),
		WithDefaultProject("demo"),
		WithSecretManagerClient(client),
		WithFallbackFile(fallback),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	value, err := f.Resolve(context.Background(), "secret://genai-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "local-value" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestResolveSurfacesHardErrors(t *testing.T) {
	client := &stubSecretClient{
		access: func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			return nil, status.Error(codes.NotFound, "no such secret")
		},
	}

	f, err := NewFetcher(context.Background(),
		WithDefaultProject("demo"),
		WithSecretManagerClient(client),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := f.Resolve(context.Background(), "secret://missing"); err == nil {
		t.Fatal("expected error for NotFound")
	}
}

func TestResolveRejectsBadReferences(t *testing.T) {
	f, err := NewFetcher(context.Background(),
		WithSecretManagerClient(&stubSecretClient{}),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	for _, ref := range []string{"", "https://example.com", "secret://"} {
		if _, err := f.Resolve(context.Background(), ref); err == nil {
			t.Errorf("expected error for reference %q", ref)
		}
	}
}

func TestCloseReleasesOwnedClient(t *testing.T) {
	client := &stubSecretClient{}
	f, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if client.closed {
		t.Fatal("fetcher should not close injected clients")
	}
}
