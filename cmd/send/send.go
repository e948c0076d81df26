package send

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/messaging/diagnostic"
)

const sendTimeout = time.Minute

type sendCommand struct {
	configFilePath string
	msgType        string
	body           string
	count          int
}

// NewSendCommand initializes command to send any registered message
func NewSendCommand() *cobra.Command {
	send := &sendCommand{count: 1, body: "{}"}

	cmd := &cobra.Command{
		Use:     "send",
		Short:   "Sends messages of a registered type",
		Example: `scale send -t chain -b '{"num_messages": 5}' -n 2`,
		RunE:    send.RunE,
	}
	cmd.Flags().StringVarP(&send.configFilePath, "config", "c", send.configFilePath, "File path for configuration")
	cmd.Flags().StringVarP(&send.msgType, "type", "t", send.msgType, "Message type to send")
	cmd.Flags().StringVarP(&send.body, "body", "b", send.body, "Message payload to send, a json object")
	cmd.Flags().IntVarP(&send.count, "count", "n", send.count, "Message repetitions to send")
	cmd.MarkFlagRequired("type")
	return cmd
}

func (s *sendCommand) RunE(_ *cobra.Command, _ []string) error {
	if s.count < 1 {
		return fmt.Errorf("count should be at least 1")
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	sender, err := newSender(ctx, s.configFilePath)
	if err != nil {
		return err
	}
	defer sender.close()

	body, err := withType(s.body, s.msgType)
	if err != nil {
		return err
	}
	messages := make([]messaging.Message, s.count)
	for i := range messages {
		if messages[i], err = sender.registry.Decode(body); err != nil {
			return err
		}
	}
	return sender.send(ctx, messages)
}

// withType adds the type field to a json object payload.
func withType(body, msgType string) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("message body should be a json object: %w", err)
	}
	encodedType, err := json.Marshal(msgType)
	if err != nil {
		return nil, err
	}
	fields["type"] = encodedType
	return json.Marshal(fields)
}

type echoCommand struct {
	configFilePath string
	count          int
}

// NewEchoCommand initializes command to send echo messages
func NewEchoCommand() *cobra.Command {
	echo := &echoCommand{count: 1}

	cmd := &cobra.Command{
		Use:     "echo",
		Short:   "Sends echo messages to check the handler end to end",
		Example: "scale echo -n 10",
		RunE:    echo.RunE,
	}
	cmd.Flags().StringVarP(&echo.configFilePath, "config", "c", echo.configFilePath, "File path for configuration")
	cmd.Flags().IntVarP(&echo.count, "count", "n", echo.count, "Number of echo messages to generate")
	return cmd
}

func (e *echoCommand) RunE(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	sender, err := newSender(ctx, e.configFilePath)
	if err != nil {
		return err
	}
	defer sender.close()

	messages := make([]messaging.Message, e.count)
	for i := range messages {
		messages[i] = diagnostic.NewEcho(
			fmt.Sprintf("Greetings, this is echo #%d at %s!", i+1, time.Now().UTC().Format(time.RFC3339)), sender.logger)
	}
	return sender.send(ctx, messages)
}
