package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/lore/pkg/llm"
	"github.com/xhad/lore/pkg/lore"
)

var askEntities []string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question answered from the lore",
	Long: `Ask a question. Relevant lore is retrieved, packed into a context block
and passed to the chat model as grounding. Without a question an
interactive session starts (type 'exit' to quit).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringSliceVarP(&askEntities, "entity", "e", nil, "entity to include in the retrieval query (repeatable)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	chat, err := a.chatEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	if len(args) == 1 {
		return answer(ctx, cmd.OutOrStdout(), a.service, chat, args[0])
	}

	out := cmd.OutOrStdout()
	color.New(color.FgCyan).Fprintln(out, "\nAsk about the lore (type 'exit' to quit)")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	userPrompt := color.New(color.FgGreen)
	for {
		userPrompt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if strings.EqualFold(question, "exit") {
			break
		}
		if err := answer(ctx, out, a.service, chat, question); err != nil {
			color.New(color.FgRed).Fprintf(out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

func answer(ctx context.Context, out io.Writer, service *lore.Service, chat *llm.ChatEngine, question string) error {
	spinner := getSpinner(out, " Searching lore...")
	packed, err := service.ContextForSituation(ctx, question, askEntities, 0)
	_ = spinner.Finish()
	if err != nil {
		return err
	}
	if packed.Empty() {
		color.New(color.FgYellow).Fprintln(out, "\nNo relevant lore found, answering without it.")
	}

	fmt.Fprint(out, "\n")
	color.New(color.FgCyan).Fprint(out, "Assistant: ")

	thinking := getSpinner(out, " Thinking...")
	first := true
	for chunk := range chat.AnswerStream(ctx, question, packed) {
		if chunk.Err != nil {
			_ = thinking.Finish()
			return chunk.Err
		}
		if first {
			_ = thinking.Finish()
			first = false
			fmt.Fprint(out, "\n\n")
		}
		fmt.Fprint(out, chunk.Text)
	}
	if first {
		_ = thinking.Finish()
	}
	fmt.Fprint(out, "\n")
	return nil
}
