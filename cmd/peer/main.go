// Command peer is a headless call client: it joins a room on the relay,
// then starts or answers calls with synthetic media. Commands on stdin:
// call, accept, decline, hangup, mute, video, state, quit.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DhrubaAgarwalla/private-chat-box/internal/adapters/relayclient"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/adapters/rtc"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/callctl"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/config"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	pcfg := cfg.Peer

	self, err := domain.NewPeer(uuid.NewString(), pcfg.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("bad display name")
	}

	client := relayclient.NewClient(pcfg.RelayURL, pcfg.Room, log.Logger)

	// accept/decline commands from stdin resolve the prompt; auto-accept
	// short-circuits it.
	decisions := make(chan bool)
	var accept callctl.AcceptFunc
	if !pcfg.AutoAccept {
		accept = func(from string) bool {
			fmt.Printf("incoming call from %s — type 'accept' or 'decline'\n", from)
			select {
			case ok := <-decisions:
				return ok
			case <-ctx.Done():
				return false
			}
		}
	}

	ctrl := callctl.NewController(callctl.Config{
		Room:       pcfg.Room,
		Self:       self.ID,
		Media:      rtc.SyntheticSource{},
		Transports: rtc.NewFactory(pcfg.ICEServers, log.Logger),
		Signaler:   client,
		Accept:     accept,
		OnState: func(s callctl.State) {
			fmt.Printf("-- %s\n", s)
		},
		AnswerTimeout: pcfg.AnswerTimeout,
		Logger:        log.Logger,
	})

	client.Callbacks = relayclient.Callbacks{
		RoomJoined: func(roomID string, members int) {
			fmt.Printf("-- joined room %q (%d member(s))\n", roomID, members)
		},
		IncomingCall: func(from string, offer []byte) {
			go func() {
				if err := ctrl.HandleIncomingCall(ctx, from, offer); err != nil {
					log.Warn().Err(err).Msg("incoming call not taken")
				}
			}()
		},
		CallAccepted: ctrl.HandleCallAccepted,
		IceCandidate: ctrl.HandleIceCandidate,
		CallDeclined: ctrl.HandleDeclined,
		PeerLeft: func(from string) {
			fmt.Printf("-- peer %s left the room\n", from)
		},
		ErrorReply: func(msg string) {
			fmt.Printf("-- relay error: %s\n", msg)
		},
		Down: ctrl.HandleSignalerDown,
	}

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("relay client stopped")
			cancel()
		}
	}()

	go commandLoop(ctx, cancel, ctrl, decisions)

	<-ctx.Done()
	ctrl.HangUp()
	log.Info().Msg("peer exited")
}

func commandLoop(ctx context.Context, cancel context.CancelFunc, ctrl *callctl.Controller, decisions chan<- bool) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: call | accept | decline | hangup | mute | video | state | quit")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "call":
			go func() {
				if err := ctrl.StartCall(ctx); err != nil {
					fmt.Printf("-- call failed: %v\n", err)
				}
			}()
		case "accept":
			trySend(decisions, true)
		case "decline":
			trySend(decisions, false)
		case "hangup":
			ctrl.HangUp()
		case "mute":
			fmt.Printf("-- audio enabled: %v\n", ctrl.ToggleAudio())
		case "video":
			fmt.Printf("-- video enabled: %v\n", ctrl.ToggleVideo())
		case "state":
			fmt.Printf("-- %s\n", ctrl.State())
		case "quit":
			cancel()
			return
		case "":
		default:
			fmt.Println("commands: call | accept | decline | hangup | mute | video | state | quit")
		}
	}
}

// trySend drops the decision when no prompt is waiting for one.
func trySend(ch chan<- bool, v bool) {
	select {
	case ch <- v:
	default:
		fmt.Println("-- no incoming call to decide on")
	}
}
