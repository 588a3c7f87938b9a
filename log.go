// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger returns the package logger.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger configures the package logger used by runs that do not set
// their own with [WithLogger]. Runs already started keep the logger they
// resolved.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}
