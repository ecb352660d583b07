package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// mustBind ties a flag to its viper key. Binding only fails on a nil
// flag, which is a programming error worth failing loudly for.
func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag to %s: %v", key, err))
	}
}
