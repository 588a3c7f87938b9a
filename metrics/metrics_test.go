// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"code.hybscloud.com/cesk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsRun(t *testing.T) {
	c := New("test")
	prog := cesk.Do(
		cesk.Put("x", 1),
		cesk.Gather(cesk.Get("x"), cesk.Fail(errors.New("boom"))),
	)
	res := cesk.Run(context.Background(), cesk.Safe(prog), cesk.WithObserver(c))
	require.NoError(t, res.Err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatches.WithLabelValues("cesk.PutOp", "state", "resumed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatches.WithLabelValues("cesk.GetOp", "state", "resumed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.spawns))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.exits.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.exits.WithLabelValues("failed")))
}

func TestCollectorUnhandledLabel(t *testing.T) {
	c := New("test")
	res := cesk.Run(context.Background(), cesk.Get("x"),
		cesk.WithHandlers(), cesk.WithObserver(c))
	require.Error(t, res.Err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatches.WithLabelValues("cesk.GetOp", unhandled, "threw")))
}

func TestCollectorRegisters(t *testing.T) {
	c := New("app")
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	res := cesk.Run(context.Background(), cesk.Spawn(cesk.Pure(1)), cesk.WithObserver(c))
	require.NoError(t, res.Err)

	expected := `
# HELP app_cesk_tasks_spawned_total Child tasks created.
# TYPE app_cesk_tasks_spawned_total counter
app_cesk_tasks_spawned_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "app_cesk_tasks_spawned_total"))

	n, err := testutil.GatherAndCount(reg, "app_cesk_dispatch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
