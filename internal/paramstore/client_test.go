package paramstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	values map[string]string
	calls  int
	names  []string
	err    error
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	f.names = append(f.names, *in.Name)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: &v}}, nil
}

func TestGetParameter_Prefix(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/callcenter/prod/llm-key": "sk-1", "/abs": "x"}}
	client, err := New(api, "/callcenter/prod/")
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), "llm-key")
	require.NoError(t, err)
	require.Equal(t, "sk-1", v)

	v, err = client.GetParameter(context.Background(), "/abs")
	require.NoError(t, err)
	require.Equal(t, "x", v)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api, "")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "ParameterNotFound")
}

func TestGetParameter_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{}, "")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "")
	require.ErrorContains(t, err, "must not be nil")
}

func TestResolve(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/p/asr-key": "a", "/p/tts-key": "t"}}
	client, err := New(api, "/p")
	require.NoError(t, err)

	asr, tts, preset, missing := "", "", "keep", ""
	err = Resolve(context.Background(), client, map[string]*string{
		"asr-key": &asr,
		"tts-key": &tts,
		"preset":  &preset,
		"missing": &missing,
	})
	require.Error(t, err)
	require.Equal(t, "a", asr)
	require.Equal(t, "t", tts)
	require.Equal(t, "keep", preset)
	require.Empty(t, missing)
	require.NotContains(t, api.names, "/p/preset")
}

func TestCachedValue(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"k": "v"}}
	client, err := New(api, "")
	require.NoError(t, err)

	get := CachedValue(client, "k", time.Hour)
	for i := 0; i < 3; i++ {
		v, err := get(context.Background())
		require.NoError(t, err)
		require.Equal(t, "v", v)
	}
	require.Equal(t, 1, api.calls)

	api.err = errors.New("throttled")
	expired := CachedValue(client, "k", time.Nanosecond)
	_, err = expired(context.Background())
	require.ErrorContains(t, err, "throttled")
}
