package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/citytrain/internal/canon"
	"github.com/roach88/citytrain/internal/enhance/voice"
)

// KeyOptions holds flags for the key command.
type KeyOptions struct {
	*RootOptions
	KeyConfig string
	Voice     bool
}

// NewKeyCommand creates the key command.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "key <text>",
		Short: "Print the content key for a config and text",
		Long: `Derive the content key that identifies a piece of content under a
configuration. With --voice the configuration is the addVoice service
config, so the key matches the breadcrumb addVoice would write.

Example:
  citytrain key --key-config '{"voice":"Matthew"}' "hello world"
  citytrain key --voice --config citytrain.yaml "hello world"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKey(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.KeyConfig, "key-config", "{}", "configuration as a JSON value")
	cmd.Flags().BoolVar(&opts.Voice, "voice", false, "use the addVoice service config")
	cmd.MarkFlagsMutuallyExclusive("key-config", "voice")

	return cmd
}

func runKey(opts *KeyOptions, text string, cmd *cobra.Command) error {
	var (
		key string
		err error
	)
	if opts.Voice {
		key, err = voiceKey(opts, text)
	} else {
		key, err = plainKey(opts.KeyConfig, text)
	}
	if err != nil {
		return err
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(map[string]string{"key": key})
	}
	return out.Success(key)
}

func plainKey(rawConfig, text string) (string, error) {
	var cfg any
	if err := json.Unmarshal([]byte(rawConfig), &cfg); err != nil {
		return "", WrapExitError(ExitCommandError, "invalid --key-config", err)
	}
	key, err := canon.MakeKey(cfg, text)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to derive key", err)
	}
	return key, nil
}

func voiceKey(opts *KeyOptions, text string) (string, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return "", err
	}
	settings, err := voice.ResolveSettings(cfg.Voice.Map(), nil)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid voice config", err)
	}
	key, err := voice.Key(settings, text)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to derive key", err)
	}
	return key, nil
}
