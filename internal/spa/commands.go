package spa

import (
	"time"

	"github.com/rs/zerolog/log"
)

// CommandKind is the attribute a queued command drives.
type CommandKind int

const (
	CmdPower CommandKind = iota
	CmdHeating
	CmdFilter
	CmdBubbles
	CmdUnits
	CmdTemperature
)

type stage int

const (
	stageAwaitDelay stage = iota
	stageAwaitConfirm
	stageFinished
)

// noStep never matches an observed temperature.
const noStep = -1 << 31

// command is one queued user intent.
type command struct {
	kind     CommandKind
	wantBool bool
	wantInt  int

	step    int
	stage   stage
	started time.Time
	tries   int
}

// commandSpec is the per-kind behaviour: timing, and how to read and
// compare the observed state.
type commandSpec struct {
	name    string
	delay   time.Duration
	timeout time.Duration
	retries int

	// plan picks the button for the next press. done is true when the
	// observed state already matches and no press is needed.
	plan func(e *Engine, c *command) (btn Button, done bool)

	// check compares the observed state with the full goal (match) and with
	// the single step requested by the last press (step).
	check func(e *Engine, c *command) (match, step bool)
}

var commandSpecs = [...]commandSpec{
	CmdPower:       boolSpec("power", 500*time.Millisecond, 200*time.Millisecond, BtnPower, (*Engine).PowerEnabled),
	CmdUnits:       boolSpec("units", 300*time.Millisecond, 500*time.Millisecond, BtnUnits, (*Engine).Celsius),
	CmdFilter:      boolSpec("filter", 0, 600*time.Millisecond, BtnFilter, (*Engine).FilterEnabled),
	CmdHeating:     boolSpec("heating", 0, 600*time.Millisecond, BtnHeater, (*Engine).HeatingEnabled),
	CmdBubbles:     boolSpec("bubbles", 0, 600*time.Millisecond, BtnBubble, (*Engine).BubblesEnabled),
	CmdTemperature: {
		name:    "temperature",
		timeout: 550 * time.Millisecond,
		retries: 30,
		plan:    planTemperature,
		check:   checkTemperature,
	},
}

func (k CommandKind) String() string {
	if k < 0 || int(k) >= len(commandSpecs) {
		return "unknown"
	}
	return commandSpecs[k].name
}

func boolSpec(name string, delay, timeout time.Duration, btn Button, observe func(*Engine) bool) commandSpec {
	return commandSpec{
		name:    name,
		delay:   delay,
		timeout: timeout,
		retries: 2,
		plan: func(e *Engine, c *command) (Button, bool) {
			return btn, observe(e) == c.wantBool
		},
		check: func(e *Engine, c *command) (bool, bool) {
			return observe(e) == c.wantBool, false
		},
	}
}

func planTemperature(e *Engine, c *command) (Button, bool) {
	if !e.hasTarget {
		// The first press only makes the panel blink its target.
		c.step = noStep
		return BtnDown, false
	}
	switch {
	case e.target > c.wantInt:
		c.step = e.target - 1
		return BtnDown, false
	case e.target < c.wantInt:
		c.step = e.target + 1
		return BtnUp, false
	}
	return BtnDown, true
}

func checkTemperature(e *Engine, c *command) (bool, bool) {
	if !e.hasTarget {
		return false, false
	}
	return e.target == c.wantInt, e.target == c.step
}

func (e *Engine) enqueue(c *command) {
	c.started = e.now()
	e.queue = append(e.queue, c)
}

// runCommands advances the command at the head of the queue and drops it
// once finished. The next command starts on the following call.
func (e *Engine) runCommands(now time.Time) {
	if len(e.queue) == 0 {
		return
	}
	c := e.queue[0]
	e.runCommand(c, now)
	if c.stage == stageFinished {
		e.queue[0] = nil
		e.queue = e.queue[1:]
	}
}

func (e *Engine) runCommand(c *command, now time.Time) {
	if c.stage == stageFinished || e.panel.ButtonPending() {
		return
	}
	spec := &commandSpecs[c.kind]

	switch c.stage {
	case stageAwaitDelay:
		if now.Sub(c.started) < spec.delay {
			return
		}
		btn, done := spec.plan(e, c)
		if done {
			c.stage = stageFinished
			return
		}
		if !e.writeButton(btn, now) {
			return
		}
		c.started = now
		c.tries++
		c.stage = stageAwaitConfirm

	case stageAwaitConfirm:
		if now.Sub(c.started) < spec.timeout {
			match, step := spec.check(e, c)
			if match {
				c.stage = stageFinished
				return
			}
			if !step {
				return
			}
			// Intermediate progress: issue the next step straight away.
			c.started = now
		}
		c.stage = stageAwaitDelay
		if c.tries >= spec.retries {
			c.stage = stageFinished
			log.Debug().
				Str("command", spec.name).
				Int("tries", c.tries).
				Msg("command did not converge, giving up")
		}
	}
}

func (e *Engine) writeButton(btn Button, now time.Time) bool {
	if !e.panel.RequestButton(btn.Code()) {
		return false
	}
	e.buttonAt = now
	return true
}
