package clicommon

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestVerbosityFlag(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    VerbosityFlag
		wantErr bool
	}{
		{name: "unset", args: nil, want: 0},
		{name: "once", args: []string{"-v"}, want: 1},
		{name: "twice", args: []string{"-v", "-v"}, want: 2},
		{name: "combined", args: []string{"-vv"}, want: 2},
		{name: "explicit level", args: []string{"--verbose=3"}, want: 3},
		{name: "explicit false", args: []string{"-v", "--verbose=false"}, want: 0},
		{name: "invalid", args: []string{"--verbose=loud"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			var cfg CommonConfig
			root := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
			SetupRoot(root, &cfg)

			err := root.ParseFlags(tt.args)
			if tt.wantErr {
				assert.Error(err)
				return
			}
			assert.NoError(err)
			assert.Equal(tt.want, cfg.Verbosity)
		})
	}
}

func TestCommonConfig_LogOpts(t *testing.T) {
	assert := assert.New(t)

	cfg := CommonConfig{JsonLog: true, Color: "never"}
	opts := cfg.LogOpts()
	assert.Equal("json", opts.Encoding)
	assert.False(opts.Verbose)
	assert.Contains(opts.DefaultLevels, "publish")

	cfg = CommonConfig{Verbosity: 2}
	opts = cfg.LogOpts()
	assert.True(opts.Verbose)
	assert.Empty(opts.Encoding)
	assert.Nil(opts.DefaultLevels)
}
