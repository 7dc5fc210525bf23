package remote

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tillsync/internal/testutil"
)

func TestNormalizeSetupCode(t *testing.T) {
	assert.Equal(t, "ABCD1234", NormalizeSetupCode(" abcd-1234 "))
	assert.Equal(t, "XY", NormalizeSetupCode("x-y"))
	assert.Equal(t, "", NormalizeSetupCode(" - "))
}

func TestProvision(t *testing.T) {
	fa := testutil.NewFakeAuthority(t, testTenant, testAPIKey)
	fa.SetSetupCode("ABCD1234")

	creds, err := Provision(context.Background(), fa.URL()+"/", testTenant, "abcd-1234")
	require.NoError(t, err)
	assert.Equal(t, testAPIKey, creds.APIKey)
	assert.Equal(t, testTenant, creds.Tenant)
	assert.Equal(t, fa.URL(), creds.ServerURL)
	assert.Equal(t, "Fridge", creds.RegisterName)
}

func TestProvision_InvalidCode(t *testing.T) {
	fa := testutil.NewFakeAuthority(t, testTenant, testAPIKey)
	fa.SetSetupCode("ABCD1234")

	_, err := Provision(context.Background(), fa.URL(), testTenant, "wrong")
	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
}

func TestProvision_Expired(t *testing.T) {
	fa := testutil.NewFakeAuthority(t, testTenant, testAPIKey)
	fa.SetStatus(testutil.EndpointProvision, http.StatusGone)

	_, err := Provision(context.Background(), fa.URL(), testTenant, "ABCD1234")
	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusGone, te.StatusCode)
}
