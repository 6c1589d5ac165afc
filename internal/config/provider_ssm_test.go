package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

var _ SecretProvider = (*SSMProvider)(nil)
var _ SecretProvider = (*EnvVarProvider)(nil)

type fakeSSM struct {
	values  map[string]string
	err     error
	batches [][]string
}

func (f *fakeSSM) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batches = append(f.batches, append([]string(nil), in.Names...))
	if f.err != nil {
		return nil, f.err
	}
	if in.WithDecryption == nil || !*in.WithDecryption {
		return nil, errors.New("decryption not requested")
	}
	out := &ssm.GetParametersOutput{}
	for _, name := range in.Names {
		if v, ok := f.values[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, name)
		}
	}
	return out, nil
}

func TestSSMProviderBatchesRequests(t *testing.T) {
	fake := &fakeSSM{values: map[string]string{}}
	var keys []string
	for i := 0; i < 23; i++ {
		key := fmt.Sprintf("/dev/sitescore/p%02d", i)
		keys = append(keys, key)
		fake.values[key] = fmt.Sprintf("v%02d", i)
	}
	provider := newSSMProviderWithClient("us-east-1", fake)

	got, err := provider.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if len(got) != 23 {
		t.Errorf("len(result) = %d, want 23", len(got))
	}
	if got["/dev/sitescore/p07"] != "v07" {
		t.Errorf("p07 = %q, want %q", got["/dev/sitescore/p07"], "v07")
	}
	if len(fake.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(fake.batches))
	}
	for i, want := range []int{10, 10, 3} {
		if len(fake.batches[i]) != want {
			t.Errorf("batch %d size = %d, want %d", i, len(fake.batches[i]), want)
		}
	}
}

func TestSSMProviderInvalidParameters(t *testing.T) {
	fake := &fakeSSM{values: map[string]string{"/dev/a": "1"}}
	provider := newSSMProviderWithClient("us-east-1", fake)

	_, err := provider.GetParametersBatch(context.Background(), []string{"/dev/a", "/dev/missing"})
	if err == nil {
		t.Fatal("expected error for invalid parameters")
	}
	if !strings.Contains(err.Error(), "/dev/missing") {
		t.Errorf("error should name the missing parameter, got %q", err.Error())
	}
}

func TestSSMProviderClientError(t *testing.T) {
	sentinel := errors.New("access denied")
	provider := newSSMProviderWithClient("us-east-1", &fakeSSM{err: sentinel})

	_, err := provider.GetParametersBatch(context.Background(), []string{"/dev/a"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
}

func TestSSMProviderCancelledContext(t *testing.T) {
	fake := &fakeSSM{values: map[string]string{"/dev/a": "1"}}
	provider := newSSMProviderWithClient("us-east-1", fake)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.GetParametersBatch(ctx, []string{"/dev/a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fake.batches) != 0 {
		t.Errorf("client called %d times after cancellation, want 0", len(fake.batches))
	}
}

func TestSSMProviderEmptyKeys(t *testing.T) {
	provider := NewSSMProvider("us-east-1")
	got, err := provider.GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil map, got %v", got)
	}
}

func TestEnvVarProviderResolvesPresentKeys(t *testing.T) {
	env := map[string]string{"ONE": "1", "TWO": ""}
	provider := &EnvVarProvider{lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}

	got, err := provider.GetParametersBatch(context.Background(), []string{"ONE", "TWO", "THREE"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if got["ONE"] != "1" {
		t.Errorf("ONE = %q, want %q", got["ONE"], "1")
	}
	if v, ok := got["TWO"]; !ok || v != "" {
		t.Errorf("TWO should resolve to the empty string, got %q (present=%v)", v, ok)
	}
	if _, ok := got["THREE"]; ok {
		t.Error("THREE should be omitted")
	}
}

func TestNewEnvVarProviderUsesProcessEnv(t *testing.T) {
	t.Setenv("SITESCORE_TEST_SECRET", "shh")
	got, err := NewEnvVarProvider().GetParametersBatch(context.Background(), []string{"SITESCORE_TEST_SECRET"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if got["SITESCORE_TEST_SECRET"] != "shh" {
		t.Errorf("SITESCORE_TEST_SECRET = %q, want %q", got["SITESCORE_TEST_SECRET"], "shh")
	}
}
