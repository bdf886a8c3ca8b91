package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botherd/botherd/pkg/client"
)

func apiClient(f *BotFlags) *client.Client {
	return client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
}

func runStart(f *BotFlags) error {
	c := apiClient(f)
	if err := c.Start(context.Background(), f.ID); err != nil {
		return err
	}
	fmt.Printf("started %s\n", f.ID)
	return nil
}

func runStop(f *BotFlags) error {
	c := apiClient(f)
	if err := c.Stop(context.Background(), f.ID, f.Wait); err != nil {
		return err
	}
	fmt.Printf("stopped %s\n", f.ID)
	return nil
}

func runStatus(cmd *cobra.Command, f *BotFlags) error {
	c := apiClient(f)
	ctx := context.Background()
	if f.ID != "" {
		st, err := c.Status(ctx, f.ID)
		if err != nil {
			return err
		}
		printStatus(cmd, st)
		return nil
	}
	sts, err := c.StatusAll(ctx)
	if err != nil {
		return err
	}
	if len(sts) == 0 {
		cmd.Println("no bots configured")
		return nil
	}
	for _, st := range sts {
		printStatus(cmd, st)
	}
	return nil
}

func printStatus(cmd *cobra.Command, st client.BotStatus) {
	state := "stopped"
	if st.Running {
		state = fmt.Sprintf("running pid=%d", st.PID)
	}
	link := "disconnected"
	if st.Connected {
		link = "connected"
	}
	cmd.Printf("%-20s %-20s %s\n", st.BotID, state, link)
}

func runSend(f *BotFlags) error {
	if !json.Valid([]byte(f.Payload)) {
		return fmt.Errorf("--payload must be valid JSON")
	}
	c := apiClient(f)
	if err := c.Send(context.Background(), f.ID, json.RawMessage(f.Payload)); err != nil {
		return err
	}
	fmt.Printf("sent to %s\n", f.ID)
	return nil
}
