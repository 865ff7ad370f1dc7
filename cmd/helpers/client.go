package helpers

import (
	"fmt"
	"os"

	"github.com/stephnangue/sessionpipe/api"
	"github.com/stephnangue/sessionpipe/config"
	"github.com/stephnangue/sessionpipe/logger"
)

var (
	c          *api.Client
	nav        *TerminalNavigator
	log        logger.Logger
	signInPath string

	// ConfigFile is the optional HCL configuration set by the --config flag.
	ConfigFile string
	// Address overrides the server address when set by the --address flag.
	Address string
	// LogLevel overrides the configured log level when set.
	LogLevel string
)

// Client constructs the HTTP API client from the environment, the optional
// configuration file and the command line flags. The session is kept in the
// configured credential store so it survives across invocations.
func Client() (*api.Client, error) {
	if c != nil {
		return c, nil
	}

	cfg := &config.Config{}
	if ConfigFile != "" {
		loaded, err := config.LoadConfig(ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if LogLevel != "" {
		cfg.LogLevel = LogLevel
	}
	// The notifier already reports an expired session on stderr.
	if cfg.LogLevel == "" && cfg.LogFile == "" {
		cfg.LogLevel = "error"
	}

	apiConfig := api.DefaultConfig()
	if apiConfig.Error != nil {
		return nil, fmt.Errorf("failed to read environment: %w", apiConfig.Error)
	}
	if err := cfg.ApplyTo(apiConfig); err != nil {
		return nil, err
	}
	if Address != "" {
		apiConfig.Address = Address
	}

	store, err := cfg.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	log = logger.NewZerologLogger(cfg.LoggerConfig()).WithSubsystem("cli")
	nav = NewTerminalNavigator(os.Stderr, "/")

	apiConfig.Store = store
	apiConfig.Logger = log
	apiConfig.Notifier = NewTerminalNotifier(os.Stderr)
	apiConfig.Navigator = nav
	// A CLI process exits right after the command, so the notice is enough.
	apiConfig.NavigateDelay = 0

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	// Turn off retries on the CLI
	if api.ReadEnvVariable(api.EnvMaxRetries) == "" && cfg.MaxRetries == nil {
		client.SetMaxRetries(0)
	}

	c = client
	signInPath = apiConfig.SignInPath
	return client, nil
}

// EnterSignIn moves the CLI onto the sign-in surface. A session that
// expires there is cleared without sending the user anywhere.
func EnterSignIn() {
	if nav != nil {
		nav.Enter(signInPath)
	}
}

// Close releases the logger of the current client.
func Close() {
	if log != nil {
		log.Close()
	}
}
