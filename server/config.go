package server

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/zond/juicebot"
	"gopkg.in/yaml.v3"
)

type Config struct {
	SSHAddr string `yaml:"ssh_addr" env:"JUICEBOT_SSH_ADDR"`
	Dir     string `yaml:"dir" env:"JUICEBOT_DIR"`
	BotName string `yaml:"bot_name" env:"JUICEBOT_BOT_NAME"`
	// Operator is the user allowed to run the reserved commands.
	Operator string `yaml:"operator" env:"JUICEBOT_OPERATOR"`
	// OperatorKeys is an authorized_keys file. Only these keys can log in as Operator.
	OperatorKeys   string        `yaml:"operator_keys" env:"JUICEBOT_OPERATOR_KEYS"`
	RunTimeout     time.Duration `yaml:"run_timeout" env:"JUICEBOT_RUN_TIMEOUT"`
	HandlerTimeout time.Duration `yaml:"handler_timeout" env:"JUICEBOT_HANDLER_TIMEOUT"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" env:"JUICEBOT_CONFIRM_TIMEOUT"`
	MessageTTL     time.Duration `yaml:"message_ttl" env:"JUICEBOT_MESSAGE_TTL"`
	// FirstWins makes only the first running script, by name, handle a shared trigger.
	FirstWins bool   `yaml:"first_wins" env:"JUICEBOT_FIRST_WINS"`
	LogFile   string `yaml:"log_file" env:"JUICEBOT_LOG_FILE"`
}

func DefaultConfig() Config {
	return Config{
		SSHAddr:        "127.0.0.1:15000",
		Dir:            filepath.Join(os.Getenv("HOME"), ".juicebot"),
		BotName:        "bot",
		Operator:       "operator",
		RunTimeout:     5 * time.Second,
		HandlerTimeout: 5 * time.Second,
		ConfirmTimeout: 10 * time.Second,
		MessageTTL:     10 * time.Minute,
	}
}

// LoadConfig returns the defaults, overridden by the YAML file at path (if path isn't empty),
// overridden by the environment.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, juicebot.WithStack(err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, errors.Wrapf(err, "parsing %q", path)
		}
	}
	if err := env.Parse(&config); err != nil {
		return Config{}, errors.Wrap(err, "parsing environment")
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.BotName == "" {
		return errors.New("bot name is required")
	}
	if c.Operator == "" {
		return errors.New("operator is required")
	}
	if c.Operator == c.BotName {
		return errors.New("operator and bot can't have the same name")
	}
	if c.Dir == "" {
		return errors.New("dir is required")
	}
	return nil
}

func (c Config) scriptsPath() string {
	return filepath.Join(c.Dir, "scripts.sqlite")
}

func (c Config) storagePath() string {
	return filepath.Join(c.Dir, "storage")
}

func (c Config) hostKeyPath() string {
	return filepath.Join(c.Dir, "ssh_host_key.pem")
}

func (c Config) hostPubKeyPath() string {
	return filepath.Join(c.Dir, "ssh_host_key.pub")
}
