package refprof

import (
	"fmt"
	"path"
	"runtime"
	"strings"
)

// callSite returns the source location of the nearest caller outside this
// package, formatted as "file.go:123 in Func". Best effort: returns "" when
// no such frame can be resolved. Must never fail the intercepted call.
func callSite() string {
	var pcs [16]uintptr
	n := runtime.Callers(2, pcs[:])
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if f.Function != "" && !strings.Contains(f.Function, "/refprof.") {
			return fmt.Sprintf("%s:%d in %s", path.Base(f.File), f.Line, shortFuncName(f.Function))
		}
		if !more {
			return ""
		}
	}
}

// shortFuncName trims the package path from a fully qualified function name:
// "github.com/x/y/pkg.(*T).Method" becomes "(*T).Method".
func shortFuncName(full string) string {
	if i := strings.LastIndex(full, "/"); i >= 0 {
		full = full[i+1:]
	}
	if i := strings.Index(full, "."); i >= 0 {
		return full[i+1:]
	}
	return full
}
