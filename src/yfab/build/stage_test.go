package build

import (
	"context"
	"fmt"
	"testing"

	"github.com/bitswalk/yfab/src/yfab/process/processtest"
)

type recordingStage struct {
	name        StageName
	validateErr error
	executeErr  error
	log         *[]string
}

func (s *recordingStage) Name() StageName { return s.name }

func (s *recordingStage) Validate(ctx context.Context, sc *StageContext) error {
	*s.log = append(*s.log, "validate "+string(s.name))
	return s.validateErr
}

func (s *recordingStage) Execute(ctx context.Context, sc *StageContext, report ProgressFunc) error {
	*s.log = append(*s.log, "execute "+string(s.name))
	report(50, "halfway "+string(s.name))
	return s.executeErr
}

func TestPipeline_Run(t *testing.T) {
	tests := []struct {
		name        string
		validateErr error
		executeErr  error
		wantLog     []string
		wantErr     bool
	}{
		{
			name:    "all stages",
			wantLog: []string{"validate a", "execute a", "validate b", "execute b"},
		},
		{
			name:        "validation failure stops before execute",
			validateErr: fmt.Errorf("invalid"),
			wantLog:     []string{"validate a", "execute a", "validate b"},
			wantErr:     true,
		},
		{
			name:       "execute failure",
			executeErr: fmt.Errorf("boom"),
			wantLog:    []string{"validate a", "execute a", "validate b", "execute b"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []string
			p := NewPipeline(
				&recordingStage{name: "a", log: &log},
				&recordingStage{name: "b", log: &log, validateErr: tt.validateErr, executeErr: tt.executeErr},
			)
			sink := &processtest.Sink{}

			err := p.Run(context.Background(), &StageContext{Sink: sink})
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if fmt.Sprint(log) != fmt.Sprint(tt.wantLog) {
				t.Errorf("log = %v, want %v", log, tt.wantLog)
			}
			if len(sink.Appended) == 0 || sink.Appended[0] != "halfway a" {
				t.Errorf("appended = %v", sink.Appended)
			}
		})
	}
}

type steppedStage struct {
	name  StageName
	steps []int
}

func (s *steppedStage) Name() StageName { return s.name }

func (s *steppedStage) Validate(ctx context.Context, sc *StageContext) error { return nil }

func (s *steppedStage) Execute(ctx context.Context, sc *StageContext, report ProgressFunc) error {
	for _, p := range s.steps {
		report(p, "")
	}
	return nil
}

func TestPipeline_RunWeightsProgress(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
		want   []int
	}{
		{
			name:   "single stage reports 0-100",
			stages: []Stage{&steppedStage{name: StageConfigure, steps: []int{0, 40, 100}}},
			want:   []int{0, 40, 100},
		},
		{
			name: "build stages share 0-100",
			stages: []Stage{
				&steppedStage{name: StageConfigure, steps: []int{0, 100}},
				&steppedStage{name: StageLayers, steps: []int{0, 50, 100}},
				&steppedStage{name: StageBitbake, steps: []int{0, 50, 100}},
			},
			want: []int{0, 5, 10, 15, 57, 100},
		},
		{
			name: "restarting stage does not go backwards",
			stages: []Stage{
				&steppedStage{name: StageLayers, steps: []int{0, 80, 10, 100}},
			},
			want: []int{0, 80, 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &processtest.Sink{}
			if err := NewPipeline(tt.stages...).Run(context.Background(), &StageContext{Sink: sink}); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if fmt.Sprint(sink.Percents) != fmt.Sprint(tt.want) {
				t.Errorf("percents = %v, want %v", sink.Percents, tt.want)
			}
		})
	}
}

func TestPipeline_Stages(t *testing.T) {
	p := NewPipeline(NewConfigureStage(nil), NewLayersStage(nil), NewBitbakeStage(nil, "", nil))
	got := p.Stages()
	want := []StageName{StageConfigure, StageLayers, StageBitbake}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Stages() = %v", got)
	}
}

func TestTree_Paths(t *testing.T) {
	tree := Tree{PokyDir: "/src/poky"}
	if tree.LocalConf() != "/src/poky/build/conf/local.conf" {
		t.Errorf("LocalConf() = %q", tree.LocalConf())
	}
	if tree.DeployDir("raspberrypi4") != "/src/poky/build/tmp/deploy/images/raspberrypi4" {
		t.Errorf("DeployDir() = %q", tree.DeployDir("raspberrypi4"))
	}
	abs := Tree{PokyDir: "/src/poky", BuildDir: "/scratch/build-rpi"}
	if abs.SessionPath() != "/scratch/build-rpi/conf/yfab-session.json" {
		t.Errorf("SessionPath() = %q", abs.SessionPath())
	}
}
