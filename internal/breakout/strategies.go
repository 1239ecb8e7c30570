package breakout

import "encoding/json"

// FrameEnvironment abstracts the browser capabilities a frame runtime
// exposes. Each call may be silently blocked by frame or browser policy;
// errors are advisory only.
type FrameEnvironment interface {
	PostMessageToParent(payload []byte) error
	AssignTopLocation(url string) error
	OpenWindow(url, target string) error
	ClickAnchor(url, target string) error
}

// TopTarget is the top-level frame target name
const TopTarget = "_top"

type postMessageStrategy struct {
	env           FrameEnvironment
	correlationID string
}

func (s postMessageStrategy) Name() string { return "post_message" }

func (s postMessageStrategy) Execute(targetURL string) error {
	success := true
	payload, err := json.Marshal(FrameMessage{
		Type:          MessageTypeCompletion,
		Success:       &success,
		URL:           targetURL,
		CorrelationID: s.correlationID,
	})
	if err != nil {
		return err
	}
	return s.env.PostMessageToParent(payload)
}

type assignTopStrategy struct{ env FrameEnvironment }

func (s assignTopStrategy) Name() string { return "assign_top_location" }

func (s assignTopStrategy) Execute(targetURL string) error {
	return s.env.AssignTopLocation(targetURL)
}

type openWindowStrategy struct{ env FrameEnvironment }

func (s openWindowStrategy) Name() string { return "open_top_window" }

func (s openWindowStrategy) Execute(targetURL string) error {
	return s.env.OpenWindow(targetURL, TopTarget)
}

type anchorClickStrategy struct{ env FrameEnvironment }

func (s anchorClickStrategy) Name() string { return "anchor_click" }

func (s anchorClickStrategy) Execute(targetURL string) error {
	return s.env.ClickAnchor(targetURL, TopTarget)
}

// StandardStrategies returns the four breakout strategies in dispatch order:
// message to the parent, direct top-location assign, named-target open,
// synthetic anchor click.
func StandardStrategies(env FrameEnvironment, correlationID string) []Strategy {
	return []Strategy{
		postMessageStrategy{env: env, correlationID: correlationID},
		assignTopStrategy{env: env},
		openWindowStrategy{env: env},
		anchorClickStrategy{env: env},
	}
}
