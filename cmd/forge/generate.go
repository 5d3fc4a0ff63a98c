package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperion-agent/contractforge/internal/llm"
	"github.com/hyperion-agent/contractforge/internal/model"
	"github.com/hyperion-agent/contractforge/internal/template"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate contract source without running the full workflow",
}

type generateContractArgs struct {
	Type string `validate:"required"`
	Name string `validate:"required"`
}

var generateContractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Generate a single contract's source from a type/name request",
	RunE:  runGenerateContract,
}

func init() {
	generateContractCmd.Flags().String("type", "", "contract archetype, e.g. erc20, erc721, multisig")
	generateContractCmd.Flags().String("name", "", "contract name to request")
	generateContractCmd.Flags().Bool("use-rag", false, "retrieve reference snippets from the template gateway before prompting")
	generateContractCmd.Flags().String("args", "", "constructor arguments as a JSON array or object, forwarded to the prompt as context")
	generateContractCmd.Flags().String("file", "", "path to a JSON file carrying the same constructor arguments")
	generateCmd.AddCommand(generateContractCmd)
}

func runGenerateContract(cmd *cobra.Command, _ []string) error {
	typ, _ := cmd.Flags().GetString("type")
	name, _ := cmd.Flags().GetString("name")
	useRAG, _ := cmd.Flags().GetBool("use-rag")
	argsJSON, _ := cmd.Flags().GetString("args")
	argsFile, _ := cmd.Flags().GetString("file")

	gargs := generateContractArgs{Type: typ, Name: name}
	if err := validate.Struct(gargs); err != nil {
		return model.NewError(model.KindConfigInvalid, "invalid generate contract arguments", err)
	}

	ctorArgs, err := loadConstructorArgs(argsJSON, argsFile)
	if err != nil {
		return model.NewError(model.KindArgumentTypeError, "failed to parse constructor arguments", err)
	}

	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fetcher := buildTemplateFetcher(cfg)
	systemTemplate, err := fetcher.Get(ctx, template.DefaultSystemTemplateName)
	if err != nil {
		return err
	}

	var ragSnippets []string
	if useRAG {
		snippet, err := fetcher.Get(ctx, "archetypes/"+typ)
		if err != nil {
			return err
		}
		ragSnippets = append(ragSnippets, snippet)
	}

	generator := buildGenerator(cfg)
	body, err := generator.Generate(ctx, llm.Request{
		SystemTemplate: systemTemplate,
		UserRequest:    composeGenerateRequest(typ, name, ctorArgs),
		RAGSnippets:    ragSnippets,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), body)
	return nil
}

func composeGenerateRequest(typ, name string, ctorArgs model.ConstructorArgs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a %s contract named %s.", typ, name)
	if len(ctorArgs.Positional) > 0 {
		fmt.Fprintf(&b, " Constructor arguments (positional): %v.", ctorArgs.Positional)
	}
	for k, v := range ctorArgs.Named {
		fmt.Fprintf(&b, " Constructor argument %s = %s.", k, v)
	}
	return b.String()
}
