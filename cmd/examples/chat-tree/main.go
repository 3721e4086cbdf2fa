package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/figaro/pkg/conversation"
	"github.com/go-go-golems/figaro/pkg/events"
	"github.com/go-go-golems/figaro/pkg/helpers"
	"github.com/go-go-golems/figaro/pkg/history"
	"github.com/go-go-golems/figaro/pkg/inference"
	"github.com/go-go-golems/figaro/pkg/pipeline"
)

// scriptedEngine replays canned answers, streaming them word by word.
type scriptedEngine struct {
	answers []string
	next    int
}

func (e *scriptedEngine) RunInference(ctx context.Context, _ *inference.Request, emit func(inference.Chunk) error) (*inference.Result, error) {
	answer := e.answers[e.next%len(e.answers)]
	e.next++
	for _, word := range strings.SplitAfter(answer, " ") {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := emit(inference.Chunk{Delta: word}); err != nil {
			return nil, err
		}
	}
	return &inference.Result{Text: answer, Model: "scripted"}, nil
}

func printActivePath(session *conversation.Session) {
	fmt.Println("--- active path ---")
	for _, node := range session.ActivePath() {
		fmt.Printf("[%s] %s\n", node.Role, node.Content)
	}
	fmt.Println()
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Events flow through a watermill in-process bus; a subscriber prints
	// the stream the way a UI pane would.
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, helpers.NewWatermill(log.Logger))
	defer func() {
		_ = pubSub.Close()
	}()
	sink := events.NewWatermillSink(pubSub, "chat")

	messages, err := pubSub.Subscribe(ctx, "chat")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe")
	}

	eg := errgroup.Group{}
	eg.Go(func() error {
		return consumeEvents(messages)
	})

	session := conversation.NewSession(conversation.WithName("chat-tree demo"))
	tree := conversation.NewTreeManager()
	branches := conversation.NewBranchManager(tree)
	hist := history.NewManager(session)
	store := conversation.NewMemoryStore()

	registry := pipeline.NewRegistry()
	must(registry.Register(pipeline.NewPathLoaderProcessor()))
	must(registry.Register(pipeline.NewSubstitutionProcessor([]pipeline.SubstitutionRule{
		{Pattern: "{{user}}", Replacement: "Alice", Literal: true},
	})))
	must(registry.Register(pipeline.NewFormatterProcessor()))

	engine := &scriptedEngine{answers: []string{
		"Hello Alice, what can I do for you? ",
		"Here is a second take on that answer. ",
	}}

	orch := inference.NewOrchestrator(session, engine,
		inference.WithTreeManager(tree),
		inference.WithHistory(hist),
		inference.WithRegistry(registry),
		inference.WithStore(store),
		inference.WithSinks(sink),
	)

	// Settle any generating markers a previous run may have left behind.
	orch.ReconcileOrphans(ctx)

	// Send a message and wait for the streamed answer.
	handle, err := orch.SendMessage(ctx, "Hi, I am {{user}}.")
	if err != nil {
		log.Fatal().Err(err).Msg("send failed")
	}
	if _, err := handle.Wait(); err != nil {
		log.Fatal().Err(err).Msg("generation failed")
	}
	printActivePath(session)

	// Regenerate the answer: a sibling branch appears next to the first one.
	regen, err := orch.RegenerateFromNode(ctx, handle.NodeID)
	if err != nil {
		log.Fatal().Err(err).Msg("regenerate failed")
	}
	if _, err := regen.Wait(); err != nil {
		log.Fatal().Err(err).Msg("generation failed")
	}
	printActivePath(session)

	// Switch back to the first answer and forth again.
	if _, err := branches.SwitchBranch(session, handle.NodeID); err != nil {
		log.Fatal().Err(err).Msg("switch failed")
	}
	printActivePath(session)

	// Disable the first answer, then undo it.
	err = hist.RecordSnapshot(session, history.ActionToggleEnabled, history.EntryContext{TargetID: handle.NodeID}, func() error {
		_, err := tree.ToggleEnabled(session, handle.NodeID)
		return err
	})
	if err != nil {
		log.Fatal().Err(err).Msg("toggle failed")
	}
	fmt.Printf("can undo: %v\n", hist.CanUndo())
	must(hist.Undo(session))
	fmt.Printf("undone, can redo: %v\n\n", hist.CanRedo())

	cancel()
	_ = eg.Wait()
}

func consumeEvents(messages <-chan *message.Message) error {
	for msg := range messages {
		event, err := events.NewEventFromJson(msg.Payload)
		if err != nil {
			msg.Nack()
			return err
		}
		switch event.Type() {
		case events.EventTypeStart:
			fmt.Printf("\n<%s> ", event.Metadata().NodeID)
		case events.EventTypePartialCompletion:
			var partial events.EventPartialCompletion
			if err := event.DecodePayload(&partial); err == nil {
				fmt.Print(partial.Delta)
			}
		case events.EventTypeFinal:
			fmt.Println()
		case events.EventTypeError, events.EventTypeInterrupt:
			fmt.Println(" [stopped]")
		}
		msg.Ack()
	}
	return nil
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("setup failed")
	}
}
