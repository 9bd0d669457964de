package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepcap/internal/emitter"
	"stepcap/internal/model"
)

var _ emitter.RecordValidator = ValidateRecord

func clickRecord() model.InteractionRecord {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	rec := model.InteractionRecord{
		ScreenContext:  model.ScreenContext{Width: 1920, Height: 1080},
		Name:           "OK",
		ControlType:    "Button",
		WindowTitle:    "Dialog",
		ActionType:     model.ActionClick,
		ActionCategory: model.CategoryClick,
		State:          model.JoinState(model.StateDisabled, "", model.StateChecked),
	}
	rec.SetPosition(model.Point{X: 10, Y: 20})
	rec.SetScreenshot("aGVsbG8=")
	rec.Stamp(start.Add(1500*time.Millisecond), start)
	return rec
}

func TestEmbeddedSchemaCompiles(t *testing.T) {
	s, err := compileRecord()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Contains(t, string(RecordSchema()), RecordSchemaURL)
}

func TestValidRecords(t *testing.T) {
	click := clickRecord()
	require.NoError(t, ValidateRecord(&click))

	key := clickRecord()
	key.ActionCategory = model.CategoryKeystroke
	key.ActionType = model.ActionArrowDown
	key.SetScreenshot("")
	key.SessionID = "2b1c0b9e-4a52-4f55-9b1a-6c7b3e9c8e11"
	require.NoError(t, ValidateRecord(&key))

	manual := model.InteractionRecord{
		Name:           model.ManualName,
		ControlType:    model.ManualControlType,
		WindowTitle:    model.ManualWindowTitle,
		ActionType:     model.ActionCapture,
		ActionCategory: model.CategoryManual,
	}
	manual.Stamp(time.Unix(100, 0), time.Unix(99, 0))
	require.NoError(t, ValidateRecord(&manual))
}

func TestInvalidRecords(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *model.InteractionRecord)
	}{
		{"unknown category", func(r *model.InteractionRecord) { r.ActionCategory = "Scroll" }},
		{"click without position", func(r *model.InteractionRecord) { r.X, r.Y = nil, nil }},
		{"click with key action", func(r *model.InteractionRecord) { r.ActionType = model.ActionTab }},
		{"manual with position", func(r *model.InteractionRecord) {
			r.ActionCategory = model.CategoryManual
			r.ActionType = model.ActionCapture
		}},
		{"negative timestamp", func(r *model.InteractionRecord) { r.Timestamp = -1 }},
		{"local captured_at", func(r *model.InteractionRecord) { r.CapturedAt = "2024-05-01T11:00:01.500+02:00" }},
		{"screenshot not base64", func(r *model.InteractionRecord) { r.SetScreenshot("not base64!") }},
		{"state out of order", func(r *model.InteractionRecord) { r.State = "checked, disabled" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := clickRecord()
			tc.mutate(&rec)
			assert.ErrorIs(t, ValidateRecord(&rec), ErrInvalidRecord)
		})
	}
}

func TestValidateJSONRejectsExtraFields(t *testing.T) {
	err := ValidateJSON([]byte(`{"x":null}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	err = ValidateJSON([]byte(`{`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRecord)
}

func TestValidatorInstalledOnBus(t *testing.T) {
	bus := emitter.New(nil)
	bus.SetValidator(ValidateRecord)
	ch, cancel := bus.Subscribe(2)
	defer cancel()

	bad := clickRecord()
	bad.ActionCategory = ""
	assert.Error(t, bus.EmitInteraction(bad))

	good := clickRecord()
	require.NoError(t, bus.EmitInteraction(good))
	ev := <-ch
	assert.Equal(t, "OK", ev.Record.Name)
}
