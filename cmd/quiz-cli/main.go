package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/quizmasterhq/quizmaster/internal/apiclient"
	"github.com/quizmasterhq/quizmaster/internal/attempt"
	"github.com/quizmasterhq/quizmaster/internal/config"
	"github.com/quizmasterhq/quizmaster/internal/logger"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"golang.org/x/term"
)

// quiz-cli is a terminal shell for taking a test: it logs in, picks a test
// from the lobby, and drives an attempt session against the server.
func main() {
	var serverURL string
	flag.StringVar(&serverURL, "server", "http://localhost:8080", "QuizMaster server base URL")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := apiclient.New(serverURL)
	reader := bufio.NewReader(os.Stdin)

	// ─── Login ─────────────────────────────────────────────────────────
	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		os.Exit(1)
	}

	login, err := client.Login(ctx, email, string(bytePassword))
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		os.Exit(1)
	}
	if login.User.Role != model.RoleStudent {
		fmt.Println("This shell is for students; log in with a student account.")
		os.Exit(1)
	}
	fmt.Printf("Welcome, %s.\n\n", login.User.Name)

	// ─── Lobby ─────────────────────────────────────────────────────────
	testID, err := pickTest(ctx, client, reader)
	if err != nil {
		fmt.Printf("Lobby error: %v\n", err)
		os.Exit(1)
	}

	// ─── Session ───────────────────────────────────────────────────────
	notifier := &terminalNotifier{}
	session := attempt.NewSession(attempt.Config{
		TestID:    testID,
		StudentID: login.User.ID,
		Backend:   client,
		Notifier:  notifier,
		Logger:    log,
	})
	defer session.Close()

	status, err := session.Resolve(ctx)
	if err != nil {
		fmt.Printf("Cannot open test: %v\n", err)
		os.Exit(1)
	}
	if status == attempt.StatusSubmitted {
		showResult(ctx, client, testID)
		return
	}
	if status == attempt.StatusNotStarted {
		fmt.Println("Starting the test begins your one and only attempt.")
		fmt.Print("Press Enter to begin... ")
		reader.ReadString('\n')
	}

	if err := session.Start(ctx); err != nil {
		fmt.Printf("Cannot start attempt: %v\n", err)
		os.Exit(1)
	}
	if session.Status() == attempt.StatusSubmitted {
		showResult(ctx, client, testID)
		return
	}

	runShell(ctx, session, reader)

	if session.Status() == attempt.StatusSubmitted {
		showResult(ctx, client, testID)
	} else {
		// Quitting mid-attempt: fire the suspend submit so progress counts.
		session.Suspend(ctx)
		fmt.Println("Attempt suspended. Log back in to resume.")
	}
}

// lobbyEntry is the subset of the lobby payload the shell displays.
type lobbyEntry struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration_minutes"`
	AttemptStatus   *string   `json:"attempt_status"`
	Score           *float64  `json:"score"`
}

func pickTest(ctx context.Context, client *apiclient.Client, reader *bufio.Reader) (uuid.UUID, error) {
	raw, err := client.Lobby(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if len(raw) == 0 {
		return uuid.Nil, errors.New("no active tests right now")
	}

	entries := make([]lobbyEntry, 0, len(raw))
	for _, r := range raw {
		var e lobbyEntry
		if err := json.Unmarshal(r, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}

	fmt.Println("Active tests:")
	for i, e := range entries {
		line := fmt.Sprintf("  [%d] %s (%d min)", i+1, e.Title, e.DurationMinutes)
		if e.AttemptStatus != nil {
			line += " — " + *e.AttemptStatus
			if e.Score != nil {
				line += fmt.Sprintf(", score %.1f", *e.Score)
			}
		}
		fmt.Println(line)
	}

	fmt.Print("Pick a test: ")
	input, _ := reader.ReadString('\n')
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(entries) {
		return uuid.Nil, errors.New("invalid selection")
	}
	return entries[n-1].ID, nil
}

// runShell is the question-view loop. One letter commands; a bare number
// selects that option on the current question.
func runShell(ctx context.Context, s *attempt.Session, reader *bufio.Reader) {
	printHelp()
	for s.Status() == attempt.StatusInProgress {
		printQuestion(s)
		fmt.Print("> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "n":
			s.Next()
		case "p":
			s.Previous()
		case "j":
			if len(fields) < 2 {
				fmt.Println("usage: j <question number>")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("usage: j <question number>")
				continue
			}
			if err := s.Jump(n - 1); err != nil {
				fmt.Printf("cannot jump: %v\n", err)
			}
		case "f":
			s.ToggleFlag(s.CurrentIndex())
		case "c":
			if err := s.SelectAnswer(s.CurrentIndex(), attempt.Unanswered); err != nil {
				fmt.Printf("cannot clear: %v\n", err)
			}
		case "m":
			printMap(s)
		case "s":
			if err := s.Submit(ctx); err != nil {
				if errors.Is(err, attempt.ErrUnanswered) {
					fmt.Println("You still have unanswered questions. Use 'm' to find them.")
				} else {
					fmt.Printf("Submit failed: %v — your answers are safe, try again.\n", err)
				}
			}
		case "q":
			return
		case "h":
			printHelp()
		default:
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				fmt.Println("Unknown command. 'h' for help.")
				continue
			}
			if err := s.SelectAnswer(s.CurrentIndex(), n-1); err != nil {
				fmt.Printf("cannot answer: %v\n", err)
			}
		}
	}
}

func printHelp() {
	fmt.Println("Commands: <number> answer | n next | p previous | j <n> jump | f flag | c clear")
	fmt.Println("          m map | s submit | h help | q quit (suspends the attempt)")
}

func printQuestion(s *attempt.Session) {
	idx := s.CurrentIndex()
	questions := s.Questions()
	if idx >= len(questions) {
		return
	}
	q := questions[idx]
	answers := s.Answers()

	fmt.Printf("\n[%02d:%02d total | %ds question] Question %d/%d",
		s.WholeRemaining()/60, s.WholeRemaining()%60,
		s.QuestionRemaining(idx), idx+1, len(questions))
	if s.Flagged(idx) {
		fmt.Print(" ⚑")
	}
	fmt.Printf("\n%s\n", q.Text)
	for i, opt := range s.Options(idx) {
		marker := " "
		if answers[idx] == i {
			marker = "*"
		}
		fmt.Printf("  %s %d) %s\n", marker, i+1, opt)
	}
}

// printMap renders the palette: answered, flagged, and locked markers.
func printMap(s *attempt.Session) {
	answers := s.Answers()
	for i := range s.Questions() {
		mark := "."
		switch {
		case s.Locked(i):
			mark = "x"
		case answers[i] != attempt.Unanswered:
			mark = "a"
		}
		if s.Flagged(i) {
			mark += "⚑"
		}
		fmt.Printf("%3d:%-3s", i+1, mark)
		if (i+1)%8 == 0 {
			fmt.Println()
		}
	}
	fmt.Println()
}

func showResult(ctx context.Context, client *apiclient.Client, testID uuid.UUID) {
	res, err := client.Result(ctx, testID)
	if err != nil {
		fmt.Printf("Submitted. Result not available yet: %v\n", err)
		return
	}
	fmt.Printf("\nResult: %.1f%% (%d/%d correct), submitted %s\n",
		res.Score, res.Correct, res.Total, res.SubmittedAt.Local().Format("15:04:05"))
}

// terminalNotifier prints session events between prompts.
type terminalNotifier struct{}

func (terminalNotifier) ResultsReady() {
	fmt.Println("\nYour attempt has been submitted.")
}

func (terminalNotifier) QuestionLocked(idx int) {
	fmt.Printf("\nTime is up for question %d; moving on.\n", idx+1)
}

func (terminalNotifier) Celebrate() {
	fmt.Println("\n🎉 Well done!")
}
