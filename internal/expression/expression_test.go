package expression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/schedy/internal/value"
)

func evalSrc(t *testing.T, src string, env *Env) any {
	t.Helper()
	prog, err := Compile(src)
	require.NoError(t, err)
	out, err := prog.Eval(env)
	require.NoError(t, err)
	return out
}

func TestEvalValues(t *testing.T) {
	env := &Env{Now: time.Now()}

	out := evalSrc(t, `21.5`, env)
	assert.Equal(t, 21.5, out)

	out = evalSrc(t, `OFF`, env)
	off, ok := out.(value.Temp)
	require.True(t, ok)
	assert.True(t, off.IsOff())

	out = evalSrc(t, `Temp(19)`, env)
	temp, ok := out.(value.Temp)
	require.True(t, ok)
	assert.True(t, temp.Equal(value.NewTemp(19)))
}

func TestEvalControlMarkers(t *testing.T) {
	env := &Env{Now: time.Now()}

	assert.IsType(t, Skip{}, evalSrc(t, `Skip()`, env))
	assert.IsType(t, Abort{}, evalSrc(t, `Abort()`, env))

	brk, ok := evalSrc(t, `Break()`, env).(Break)
	require.True(t, ok)
	assert.Equal(t, 1, brk.Levels)

	brk, ok = evalSrc(t, `Break(2)`, env).(Break)
	require.True(t, ok)
	assert.Equal(t, 2, brk.Levels)
}

func TestEvalState(t *testing.T) {
	env := &Env{
		Now: time.Now(),
		State: func(entityID string) (any, bool) {
			switch entityID {
			case "binary_sensor.window":
				return "on", true
			case "sensor.outside":
				return 4.2, true
			}
			return nil, false
		},
	}

	assert.Equal(t, true, evalSrc(t, `is_on("binary_sensor.window")`, env))
	assert.Equal(t, false, evalSrc(t, `is_off("binary_sensor.window")`, env))
	assert.Equal(t, 4.2, evalSrc(t, `state("sensor.outside")`, env))
	assert.Nil(t, evalSrc(t, `state("sensor.unknown")`, env))

	out := evalSrc(t, `is_on("binary_sensor.window") ? OFF : Temp(21)`, env)
	temp, ok := out.(value.Temp)
	require.True(t, ok)
	assert.True(t, temp.IsOff())
}

func TestCompileError(t *testing.T) {
	_, err := Compile(`21 +`)
	require.Error(t, err)
}

func TestEvalNowAndSnippets(t *testing.T) {
	now := time.Date(2026, 1, 10, 6, 30, 0, 0, time.UTC)
	env := &Env{Now: now, Snippets: map[string]any{"eco": 17.0}}

	assert.Equal(t, true, evalSrc(t, `now.Hour() < 7`, env))
	assert.Equal(t, 17.0, evalSrc(t, `snippet("eco")`, env))
}
