package clicommon

import "strconv"

// VerbosityFlag counts repetitions of a boolean flag, so `-v -v` (or `-vv`) is 2. It also accepts an explicit
// level, as in `--verbose=2`.
type VerbosityFlag int

func (f *VerbosityFlag) Set(s string) error {
	if l, err := strconv.Atoi(s); err == nil {
		*f = VerbosityFlag(l)
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	switch {
	case v:
		*f++
	case *f > 0:
		*f--
	}
	return nil
}

func (f *VerbosityFlag) Type() string {
	return "count"
}

func (f *VerbosityFlag) String() string {
	return strconv.Itoa(int(*f))
}
