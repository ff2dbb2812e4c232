// Package voice sequences wake detection, command capture and the chat
// exchange for the Nova client.
//
// The Controller owns the current Phase and the ResumeGate. Other components
// only request changes through it:
//
//	IDLE_LISTENING --wake--> ARMED --settle--> CAPTURING_COMMAND
//	CAPTURING_COMMAND --transcript--> RESPONDING --final--> IDLE_LISTENING
//	CAPTURING_COMMAND --empty--> IDLE_LISTENING
//
// Any fatal voice error posts a notice and returns to IDLE_LISTENING after a
// short display delay.
//
// # Usage
//
//	var ctrl *voice.Controller
//	det, _ := wake.Select(ctx, env, wake.Deps{
//	    Mic:     mics,
//	    STT:     transcriber,
//	    OnWake:  func() { ctrl.Wake() },
//	    OnError: func(err error) { ctrl.DetectorFailed(err) },
//	})
//	ctrl, _ = voice.NewController(voice.Deps{
//	    Config:   voice.DefaultConfig(),
//	    Mic:      mics,
//	    Detector: det,
//	    Capture:  voice.NewCapture(voice.DefaultConfig(), mics, transcriber, nil, logger),
//	    Chat:     consumer,
//	})
//	ctrl.Unmute(ctx)
//	ctrl.Run(ctx)
package voice
