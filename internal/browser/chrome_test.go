package browser

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestSameSite(t *testing.T) {
	require.Equal(t, network.CookieSameSiteLax, sameSite("Lax"))
	require.Equal(t, network.CookieSameSiteStrict, sameSite(" strict "))
	require.Equal(t, network.CookieSameSiteNone, sameSite("no_restriction"))
	require.Equal(t, network.CookieSameSite(""), sameSite("unspecified"))
}

func TestAllocatorOptions_CertFlagOnlyWhenConfigured(t *testing.T) {
	base := len(allocatorOptions(DefaultOptions()))
	o := DefaultOptions()
	o.IgnoreCertErrors = true
	require.Equal(t, base+1, len(allocatorOptions(o)))

	o = DefaultOptions()
	o.AllowAutomationFlags = true
	require.Equal(t, base-2, len(allocatorOptions(o)))

	o = DefaultOptions()
	o.ExecPath = "/usr/bin/chromium"
	require.Equal(t, base+1, len(allocatorOptions(o)))
}
