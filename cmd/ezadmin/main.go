package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/apiclient"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/studio"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/validation"
)

const (
	commandUseName          = "ezadmin"
	commandShortDescription = "Manage an EZinfo touchpoint from the terminal"

	flagNameAPIURL = "api-url"
	flagNameSlug   = "slug"
	flagNameEmail  = "email"
	flagNameOutput = "output"
	flagNameFormat = "format"
	flagNameType   = "type"
	flagNameOption = "option"

	environmentKeyAPIURL = "EZINFO_API_URL"
	environmentKeySlug   = "EZINFO_SLUG"
	environmentKeyEmail  = "EZINFO_EMAIL"

	outputFormatYAML = "yaml"
	outputFormatJSON = "json"
	outputFormatCSV  = "csv"

	missingConfigurationMessage  = "missing required configuration"
	commandInitializationFailure = "failed to configure command"
	nothingChangedMessage        = "No changes"
	savedQuestionsMessage        = "%s (%d questions)\n"
)

var (
	ErrUnknownField        = errors.New("unknown touchpoint field")
	ErrInvalidAssignment   = errors.New("assignment must look like field=value")
	ErrInvalidFieldValue   = errors.New("invalid field value")
	ErrUnknownOutputFormat = errors.New("unknown output format")
)

// AdminClient is the subset of the API the CLI needs.
type AdminClient interface {
	studio.Saver
	AdminLogin(ctx context.Context, slug string, email string) (model.TouchpointConfig, error)
	Submissions(ctx context.Context, slug string, email string) ([]model.Submission, error)
	SubmissionsCSV(ctx context.Context, slug string, email string) (string, error)
}

// ClientFactory builds an AdminClient for the configured API base URL.
type ClientFactory func(baseURL string) (AdminClient, error)

type adminSession struct {
	slug   string
	email  string
	client AdminClient
}

// AdminApplication constructs and executes the admin command tree.
type AdminApplication struct {
	configurationLoader *viper.Viper
	clientFactory       ClientFactory
}

func NewAdminApplication() *AdminApplication {
	return &AdminApplication{
		configurationLoader: viper.New(),
		clientFactory: func(baseURL string) (AdminClient, error) {
			return apiclient.New(baseURL, nil)
		},
	}
}

// WithHTTPClient routes API calls through httpClient.
func (application *AdminApplication) WithHTTPClient(httpClient *http.Client) *AdminApplication {
	application.clientFactory = func(baseURL string) (AdminClient, error) {
		return apiclient.New(baseURL, httpClient)
	}
	return application
}

func (application *AdminApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:          commandUseName,
		Short:        commandShortDescription,
		SilenceUsage: true,
	}

	persistentFlags := rootCommand.PersistentFlags()
	persistentFlags.String(flagNameAPIURL, "", "EZinfo API base URL")
	persistentFlags.String(flagNameSlug, "", "touchpoint slug")
	persistentFlags.String(flagNameEmail, "", "owner email")

	bindings := map[string]string{
		environmentKeyAPIURL: flagNameAPIURL,
		environmentKeySlug:   flagNameSlug,
		environmentKeyEmail:  flagNameEmail,
	}
	for environmentKey, flagName := range bindings {
		if bindErr := bindFlag(application.configurationLoader, persistentFlags, environmentKey, flagName); bindErr != nil {
			return nil, bindErr
		}
	}
	application.configurationLoader.AutomaticEnv()

	rootCommand.AddCommand(
		application.showCommand(),
		application.setCommand(),
		application.questionCommand(),
		application.submissionsCommand(),
	)
	return rootCommand, nil
}

func bindFlag(loader *viper.Viper, flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf("flag %s not defined", flagName)
	}
	return loader.BindPFlag(environmentKey, flag)
}

func (application *AdminApplication) session() (adminSession, error) {
	loader := application.configurationLoader
	apiURL := strings.TrimSpace(loader.GetString(environmentKeyAPIURL))
	slug := strings.TrimSpace(loader.GetString(environmentKeySlug))
	email := strings.TrimSpace(loader.GetString(environmentKeyEmail))

	var missing []string
	if apiURL == "" {
		missing = append(missing, flagNameAPIURL)
	}
	if slug == "" {
		missing = append(missing, flagNameSlug)
	}
	if email == "" {
		missing = append(missing, flagNameEmail)
	}
	if len(missing) > 0 {
		return adminSession{}, fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missing, ", "))
	}

	client, clientErr := application.clientFactory(apiURL)
	if clientErr != nil {
		return adminSession{}, clientErr
	}
	return adminSession{slug: slug, email: email, client: client}, nil
}

// openStudio logs in and starts an editing session on the stored configuration.
func (application *AdminApplication) openStudio(ctx context.Context) (adminSession, *studio.Studio, error) {
	session, sessionErr := application.session()
	if sessionErr != nil {
		return adminSession{}, nil, sessionErr
	}
	config, loginErr := session.client.AdminLogin(ctx, session.slug, session.email)
	if loginErr != nil {
		return adminSession{}, nil, loginErr
	}
	return session, studio.New(config, session.email), nil
}

func (application *AdminApplication) showCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "show",
		Short: "Print the touchpoint configuration",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			outputFormat, _ := command.Flags().GetString(flagNameOutput)
			_, adminStudio, openErr := application.openStudio(command.Context())
			if openErr != nil {
				return openErr
			}
			return writeStructured(command.OutOrStdout(), outputFormat, adminStudio.Saved())
		},
	}
	command.Flags().String(flagNameOutput, outputFormatYAML, "output format: yaml or json")
	return command
}

func (application *AdminApplication) setCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set field=value [field=value...]",
		Short: "Change touchpoint fields and save them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			session, adminStudio, openErr := application.openStudio(command.Context())
			if openErr != nil {
				return openErr
			}

			var assignErr error
			adminStudio.Update(func(draft *model.TouchpointConfig) {
				for _, argument := range arguments {
					if assignErr = assignField(draft, argument); assignErr != nil {
						return
					}
				}
			})
			if assignErr != nil {
				adminStudio.Discard()
				return assignErr
			}
			return saveStudio(command, session, adminStudio)
		},
	}
}

func (application *AdminApplication) questionCommand() *cobra.Command {
	questionCommand := &cobra.Command{
		Use:   "question",
		Short: "Edit survey questions",
	}

	addCommand := &cobra.Command{
		Use:   "add TEXT",
		Short: "Append a survey question",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			questionType, _ := command.Flags().GetString(flagNameType)
			options, _ := command.Flags().GetStringSlice(flagNameOption)
			session, adminStudio, openErr := application.openStudio(command.Context())
			if openErr != nil {
				return openErr
			}
			editErr := adminStudio.UpdateQuestions(func(questions []model.SurveyQuestion) ([]model.SurveyQuestion, error) {
				questions, addErr := studio.AddQuestion(questions)
				if addErr != nil {
					return nil, addErr
				}
				index := len(questions) - 1
				questions, editErr := studio.EditQuestion(questions, index, model.ParseQuestionType(questionType), arguments[0])
				if editErr != nil {
					return nil, editErr
				}
				for _, option := range options {
					if questions, editErr = studio.AddOption(questions, index, option); editErr != nil {
						return nil, editErr
					}
				}
				return questions, nil
			})
			if editErr != nil {
				return editErr
			}
			return saveStudio(command, session, adminStudio)
		},
	}
	addCommand.Flags().String(flagNameType, string(model.QuestionTypeShortAnswer), "short_answer or multiple_choice")
	addCommand.Flags().StringSlice(flagNameOption, nil, "choice for a multiple_choice question (repeatable)")

	removeCommand := &cobra.Command{
		Use:   "remove POSITION",
		Short: "Remove the survey question at POSITION (1-based)",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			position, parseErr := strconv.Atoi(arguments[0])
			if parseErr != nil {
				return fmt.Errorf("%w: position %q", ErrInvalidFieldValue, arguments[0])
			}
			session, adminStudio, openErr := application.openStudio(command.Context())
			if openErr != nil {
				return openErr
			}
			if editErr := adminStudio.UpdateQuestions(func(questions []model.SurveyQuestion) ([]model.SurveyQuestion, error) {
				return studio.RemoveQuestion(questions, position-1)
			}); editErr != nil {
				return editErr
			}
			return saveStudio(command, session, adminStudio)
		},
	}

	questionCommand.AddCommand(addCommand, removeCommand)
	return questionCommand
}

func (application *AdminApplication) submissionsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "submissions",
		Short: "Print survey answers and offer leads",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			format, _ := command.Flags().GetString(flagNameFormat)
			session, sessionErr := application.session()
			if sessionErr != nil {
				return sessionErr
			}
			if strings.EqualFold(format, outputFormatCSV) {
				exported, exportErr := session.client.SubmissionsCSV(command.Context(), session.slug, session.email)
				if exportErr != nil {
					return exportErr
				}
				_, writeErr := io.WriteString(command.OutOrStdout(), exported)
				return writeErr
			}
			submissions, listErr := session.client.Submissions(command.Context(), session.slug, session.email)
			if listErr != nil {
				return listErr
			}
			if submissions == nil {
				submissions = []model.Submission{}
			}
			return writeStructured(command.OutOrStdout(), format, submissions)
		},
	}
	command.Flags().String(flagNameFormat, outputFormatJSON, "output format: json, yaml or csv")
	return command
}

func saveStudio(command *cobra.Command, session adminSession, adminStudio *studio.Studio) error {
	if !adminStudio.CanSave() {
		_, writeErr := fmt.Fprintln(command.OutOrStdout(), nothingChangedMessage)
		return writeErr
	}
	if saveErr := adminStudio.Save(command.Context(), session.client); saveErr != nil {
		return fmt.Errorf("%s: %w", adminStudio.Indicator(), saveErr)
	}
	_, writeErr := fmt.Fprintf(command.OutOrStdout(), savedQuestionsMessage, adminStudio.Indicator(), len(adminStudio.Saved().SurveyQuestions))
	return writeErr
}

func writeStructured(writer io.Writer, format string, value any) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case outputFormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	case outputFormatYAML:
		encoded, encodeErr := toYAML(value)
		if encodeErr != nil {
			return encodeErr
		}
		_, writeErr := writer.Write(encoded)
		return writeErr
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutputFormat, format)
	}
}

// toYAML reuses the json field names so both outputs use the same keys.
func toYAML(value any) ([]byte, error) {
	encoded, encodeErr := json.Marshal(value)
	if encodeErr != nil {
		return nil, encodeErr
	}
	var generic any
	if decodeErr := yaml.Unmarshal(encoded, &generic); decodeErr != nil {
		return nil, decodeErr
	}
	return yaml.Marshal(generic)
}

type fieldSetter func(draft *model.TouchpointConfig, value string) error

var fieldSetters = map[string]fieldSetter{
	"enabled":                   boolSetter(func(draft *model.TouchpointConfig, value bool) { draft.Enabled = value }),
	"google_review_enabled":     boolSetter(func(draft *model.TouchpointConfig, value bool) { draft.GoogleReviewEnabled = value }),
	"ai_enabled":                boolSetter(func(draft *model.TouchpointConfig, value bool) { draft.AIEnabled = value }),
	"loyalty_offer_enabled":     boolSetter(func(draft *model.TouchpointConfig, value bool) { draft.OfferEnabled = value }),
	"prompt_title":              textSetter(func(draft *model.TouchpointConfig, value string) { draft.PromptTitle = value }),
	"prompt_subtitle":           textSetter(func(draft *model.TouchpointConfig, value string) { draft.PromptSubtitle = value }),
	"loyalty_offer_title":       textSetter(func(draft *model.TouchpointConfig, value string) { draft.OfferTitle = value }),
	"loyalty_offer_description": textSetter(func(draft *model.TouchpointConfig, value string) { draft.OfferDescription = value }),
	"loyalty_offer_terms":       textSetter(func(draft *model.TouchpointConfig, value string) { draft.OfferTerms = value }),
	"theme_bg_color":            colorSetter(func(draft *model.TouchpointConfig, value string) { draft.ThemeBgColor = value }),
	"theme_shade_color":         colorSetter(func(draft *model.TouchpointConfig, value string) { draft.ThemeShadeColor = value }),
	"primary_mode": func(draft *model.TouchpointConfig, value string) error {
		switch mode := model.PrimaryMode(strings.ToUpper(value)); mode {
		case model.PrimaryModeGoogleReviews, model.PrimaryModeSurvey:
			draft.PrimaryMode = mode
			return nil
		default:
			return fmt.Errorf("%w: primary_mode=%q", ErrInvalidFieldValue, value)
		}
	},
	"redirect_mode": func(draft *model.TouchpointConfig, value string) error {
		switch mode := model.RedirectMode(strings.ToLower(value)); mode {
		case model.RedirectModeAssist, model.RedirectModeDirect:
			draft.RedirectMode = mode
			return nil
		default:
			return fmt.Errorf("%w: redirect_mode=%q", ErrInvalidFieldValue, value)
		}
	},
	"google_review_url": func(draft *model.TouchpointConfig, value string) error {
		if result := validation.ValidateGoogleReviewURL(value); !result.Valid {
			return fmt.Errorf("%w: %s", ErrInvalidFieldValue, result.Error)
		}
		draft.GoogleReviewURL = value
		return nil
	},
}

func boolSetter(apply func(*model.TouchpointConfig, bool)) fieldSetter {
	return func(draft *model.TouchpointConfig, value string) error {
		parsed, parseErr := strconv.ParseBool(value)
		if parseErr != nil {
			return fmt.Errorf("%w: %q is not a boolean", ErrInvalidFieldValue, value)
		}
		apply(draft, parsed)
		return nil
	}
}

func textSetter(apply func(*model.TouchpointConfig, string)) fieldSetter {
	return func(draft *model.TouchpointConfig, value string) error {
		apply(draft, value)
		return nil
	}
}

func colorSetter(apply func(*model.TouchpointConfig, string)) fieldSetter {
	return func(draft *model.TouchpointConfig, value string) error {
		if value != "" && !validation.IsValidHex(value) {
			return fmt.Errorf("%w: %q must be #RRGGBB", ErrInvalidFieldValue, value)
		}
		apply(draft, value)
		return nil
	}
}

func assignField(draft *model.TouchpointConfig, assignment string) error {
	field, value, found := strings.Cut(assignment, "=")
	field = strings.TrimSpace(field)
	if !found || field == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAssignment, assignment)
	}
	setter, known := fieldSetters[field]
	if !known {
		return fmt.Errorf("%w: %s (known: %s)", ErrUnknownField, field, strings.Join(knownFields(), ", "))
	}
	return setter(draft, strings.TrimSpace(value))
}

func knownFields() []string {
	fields := make([]string, 0, len(fieldSetters))
	for field := range fieldSetters {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func main() {
	rootCommand, commandErr := NewAdminApplication().Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}
	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
