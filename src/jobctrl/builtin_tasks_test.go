package jobctrl_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"jobrunner/src/jobctrl"
)

func TestMathOp(t *testing.T) {
	tests := []struct {
		name    string
		payload jobctrl.MathPayload
		want    float64
		wantErr bool
	}{
		{name: "add", payload: jobctrl.MathPayload{Operation: "add", A: 10, B: 20}, want: 30},
		{name: "subtract", payload: jobctrl.MathPayload{Operation: "subtract", A: 10, B: 20}, want: -10},
		{name: "multiply", payload: jobctrl.MathPayload{Operation: "multiply", A: 5, B: 5}, want: 25},
		{name: "divide", payload: jobctrl.MathPayload{Operation: "divide", A: 10, B: 4}, want: 2.5},
		{name: "divide by zero", payload: jobctrl.MathPayload{Operation: "divide", A: 10, B: 0}, wantErr: true},
		{name: "unknown operation", payload: jobctrl.MathPayload{Operation: "modulo", A: 1, B: 2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := jobctrl.MathOp(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("MathOp() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Result != tt.want {
				t.Errorf("MathOp() = %v, want %v", got.Result, tt.want)
			}
		})
	}
}

func TestReverse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "abc", want: "cba"},
		{in: "", want: ""},
		{in: "Data Engineering", want: "gnireenignE ataD"},
		{in: "héllo", want: "olléh"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := jobctrl.Reverse(tt.in); got != tt.want {
				t.Errorf("Reverse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuiltinTasks_Execute(t *testing.T) {
	r := jobctrl.NewRegistry()
	jobctrl.RegisterBuiltinTasks(r, jobctrl.BuiltinOptions{})

	tests := []struct {
		name     string
		taskType string
		payload  string
		want     string
		wantErr  bool
	}{
		{name: "math add", taskType: jobctrl.TaskTypeMathOp, payload: `{"operation":"add","a":10,"b":20}`, want: `{"result":30}`},
		{name: "math divide by zero", taskType: jobctrl.TaskTypeMathOp, payload: `{"operation":"divide","a":10,"b":0}`, wantErr: true},
		{name: "text reverse", taskType: jobctrl.TaskTypeTextReverse, payload: `{"text":"abc"}`, want: `{"result":"cba"}`},
		{name: "mock fetch", taskType: jobctrl.TaskTypeMockAPIFetch, payload: `{"url":"https://api.example.com/data/1"}`,
			want: `{"status":200,"data":"Mock data for https://api.example.com/data/1"}`},
		{name: "mock fetch bad url", taskType: jobctrl.TaskTypeMockAPIFetch, payload: `{"url":"not a url"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Execute(context.Background(), tt.taskType, json.RawMessage(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(got) != tt.want {
				t.Errorf("Execute() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuiltinTasks_HonorContext(t *testing.T) {
	r := jobctrl.NewRegistry()
	jobctrl.RegisterBuiltinTasks(r, jobctrl.BuiltinOptions{FetchLatency: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Execute(ctx, jobctrl.TaskTypeMockAPIFetch, json.RawMessage(`{"url":"https://api.example.com/users/5"}`))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute() error = %v, want context.DeadlineExceeded", err)
	}
}
