package registry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/docker/cli/cli/config"
	"github.com/docker/cli/cli/config/types"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
)

// NativeLoginer verifies credentials against the registry's API and then
// stores them in the Docker credential cache, exactly where `docker login`
// would. Any credential helper configured in the Docker configuration is
// honored.
type NativeLoginer struct {
	// ConfigDir is the Docker configuration directory. The empty string means
	// Docker's default ($DOCKER_CONFIG or ~/.docker).
	ConfigDir string
	// Insecure permits plain HTTP.
	Insecure bool
	// Transport is the base transport. It defaults to a pooled transport from
	// go-cleanhttp.
	Transport http.RoundTripper
}

// Login implements Loginer.
func (n *NativeLoginer) Login(ctx context.Context, creds Credentials) error {
	if err := creds.validate(); err != nil {
		return err
	}
	var opts []name.Option
	if n.Insecure {
		opts = append(opts, name.Insecure)
	}
	reg, err := name.NewRegistry(creds.Registry, opts...)
	if err != nil {
		return fmt.Errorf("error parsing registry %q: %w", creds.Registry, err)
	}
	if err = n.verify(ctx, reg, creds); err != nil {
		return fmt.Errorf("error logging in to %s: %w", creds.displayName(), err)
	}
	serverAddress := serverAddressFor(reg)
	if err = n.store(serverAddress, creds); err != nil {
		return fmt.Errorf("error storing credentials for %s: %w", creds.displayName(), err)
	}
	logging.LoggerFromContext(ctx).Debug(
		"stored registry credentials",
		"registry", creds.displayName(),
		"serverAddress", serverAddress,
	)
	return nil
}

// verify performs the registry's auth handshake and an authenticated request
// to the API base endpoint, which only succeeds with valid credentials.
func (n *NativeLoginer) verify(
	ctx context.Context,
	reg name.Registry,
	creds Credentials,
) error {
	base := n.Transport
	if base == nil {
		base = cleanhttp.DefaultPooledTransport()
	}
	auth := authn.FromConfig(authn.AuthConfig{
		Username: creds.Username,
		Password: creds.Password,
	})
	tr, err := transport.NewWithContext(ctx, reg, auth, base, nil)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s://%s/v2/", reg.Scheme(), reg.RegistryStr()),
		nil,
	)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Transport: tr}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return transport.CheckError(resp, http.StatusOK)
}

func (n *NativeLoginer) store(serverAddress string, creds Credentials) error {
	cf, err := config.Load(n.ConfigDir)
	if err != nil {
		return err
	}
	return cf.GetCredentialsStore(serverAddress).Store(types.AuthConfig{
		Username:      creds.Username,
		Password:      creds.Password,
		ServerAddress: serverAddress,
	})
}

// serverAddressFor returns the key Docker uses for a registry in its
// credential cache. Docker Hub is special-cased, as `docker login` does.
func serverAddressFor(reg name.Registry) string {
	if reg.RegistryStr() == name.DefaultRegistry {
		return authn.DefaultAuthKey
	}
	return reg.RegistryStr()
}
