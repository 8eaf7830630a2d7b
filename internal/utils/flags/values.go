package flags

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// ErrFlagNotDefined reports a lookup for a flag the command tree does not declare.
var ErrFlagNotDefined = errors.New("flag not defined")

// BoolFlag returns the value of a boolean flag and whether the user set it. Values of
// custom flag types are parsed from their string form.
func BoolFlag(command *cobra.Command, name string) (bool, bool, error) {
	return lookupFlag(command, name, func(flagSet *pflag.FlagSet, flag *pflag.Flag) (bool, error) {
		if value, getError := flagSet.GetBool(name); getError == nil {
			return value, nil
		}
		parsed, parseError := strconv.ParseBool(strings.TrimSpace(flag.Value.String()))
		if parseError != nil {
			return false, fmt.Errorf("unable to parse flag %q: %w", name, parseError)
		}
		return parsed, nil
	})
}

// StringFlag returns the value of a string flag and whether the user set it.
func StringFlag(command *cobra.Command, name string) (string, bool, error) {
	return lookupFlag(command, name, func(flagSet *pflag.FlagSet, _ *pflag.Flag) (string, error) {
		return flagSet.GetString(name)
	})
}

// IntFlag returns the value of an int flag and whether the user set it.
func IntFlag(command *cobra.Command, name string) (int, bool, error) {
	return lookupFlag(command, name, func(flagSet *pflag.FlagSet, _ *pflag.Flag) (int, error) {
		return flagSet.GetInt(name)
	})
}

// DurationFlag returns the value of a duration flag and whether the user set it.
func DurationFlag(command *cobra.Command, name string) (time.Duration, bool, error) {
	return lookupFlag(command, name, func(flagSet *pflag.FlagSet, _ *pflag.Flag) (time.Duration, error) {
		return flagSet.GetDuration(name)
	})
}

// lookupFlag searches the command's local, persistent, and inherited flags before the
// root persistent flags, so values resolve before and after cobra merges flag sets.
func lookupFlag[T any](command *cobra.Command, name string, read func(*pflag.FlagSet, *pflag.Flag) (T, error)) (T, bool, error) {
	var zero T
	if command == nil {
		return zero, false, ErrFlagNotDefined
	}

	for _, flagSet := range []*pflag.FlagSet{command.Flags(), command.PersistentFlags(), command.InheritedFlags(), command.Root().PersistentFlags()} {
		flag := flagSet.Lookup(name)
		if flag == nil {
			continue
		}
		value, readError := read(flagSet, flag)
		if readError != nil {
			return zero, false, readError
		}
		return value, flag.Changed, nil
	}
	return zero, false, ErrFlagNotDefined
}
