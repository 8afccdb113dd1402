package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/evolution/message"
)

func sendTextCmd() *cobra.Command {
	var (
		conn     string
		instance string
		number   string
		text     string
		queued   bool
	)

	cmd := &cobra.Command{
		Use:   "send-text",
		Short: "Send a text message",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if queued {
				msg := message.TextMessage{Number: number, Text: text}
				taskID, err := a.client.QueueMessage(ctx, conn, instance, message.Text, msg)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), taskID.String())
				return nil
			}

			resp, err := a.client.SendText(ctx, conn, instance, number, text)
			if err != nil {
				return err
			}
			if resp.Skipped {
				return errors.New("message skipped by rate limit")
			}
			return printJSON(cmd, resp.Body)
		},
	}

	cmd.Flags().StringVar(&conn, "connection", "", "Connection name (default: active)")
	cmd.Flags().StringVarP(&instance, "instance", "i", "", "Instance name")
	cmd.Flags().StringVarP(&number, "number", "n", "", "Recipient number")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Message text")
	cmd.Flags().BoolVar(&queued, "queue", false, "Enqueue instead of sending now")
	_ = cmd.MarkFlagRequired("instance")
	_ = cmd.MarkFlagRequired("number")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func stateCmd() *cobra.Command {
	var conn string

	cmd := &cobra.Command{
		Use:   "state <instance>",
		Short: "Show the connection state of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.client.ConnectionState(cmd.Context(), conn, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", st.Instance, st.State)
			return nil
		},
	}

	cmd.Flags().StringVar(&conn, "connection", "", "Connection name (default: active)")
	return cmd
}

func instancesCmd() *cobra.Command {
	var conn string

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List the instances of a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.client.FetchInstances(cmd.Context(), conn)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tOWNER\tPROFILE")
			for _, inst := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", inst.Name, inst.ConnectionStatus, inst.OwnerJID, inst.ProfileName)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&conn, "connection", "", "Connection name (default: active)")
	return cmd
}

func printJSON(cmd *cobra.Command, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		_, err = cmd.OutOrStdout().Write(append(body, '\n'))
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
