package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/database"
	"github.com/vigilcbt/vigil-backend/internal/logger"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// questionFile is the JSON shape consumed by -questions.
type questionFile struct {
	Questions []struct {
		Text          string         `json:"text"`
		Options       []model.Option `json:"options"`
		CorrectOption string         `json:"correct_option"`
		Marks         int            `json:"marks"`
	} `json:"questions"`
}

func main() {
	var questionsPath string
	flag.StringVar(&questionsPath, "questions", "", "Path to a JSON question set (optional)")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New Exam ===")

	fmt.Print("Enter Title: ")
	title, _ := reader.ReadString('\n')
	title = strings.TrimSpace(title)
	if title == "" {
		fmt.Println("Error: Title is required")
		return
	}

	duration := promptInt(reader, "Enter Duration in minutes (default 60): ", 60)
	if duration <= 0 {
		fmt.Println("Error: Duration must be positive")
		return
	}

	antiCheat := promptBool(reader, "Enable anti-cheat? (Y/n): ", true)

	maxViolations := 3
	if antiCheat {
		maxViolations = promptInt(reader, "Max violations before force-submit (default 3): ", 3)
		if maxViolations <= 0 {
			fmt.Println("Error: Max violations must be positive")
			return
		}
	}

	exam := &model.Exam{
		Title:            title,
		DurationMinutes:  duration,
		AntiCheatEnabled: antiCheat,
		MaxViolations:    maxViolations,
	}

	if promptBool(reader, "Require an access code? (y/N): ", false) {
		fmt.Print("Enter Access Code: ")
		byteCode, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // Newline after hidden input
		if err != nil {
			fmt.Println("Error reading access code")
			return
		}
		if len(byteCode) < 4 {
			fmt.Println("Error: Access code must be at least 4 characters")
			return
		}

		hash, err := bcrypt.GenerateFromPassword(byteCode, cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash access code")
		}
		exam.RequireAccessCode = true
		exam.AccessCodeHash = string(hash)
	}

	// ─── Create Exam ───────────────────────────────────────────────────
	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}

	fmt.Printf("\nSuccess! Exam '%s' created with ID: %s\n", exam.Title, exam.ID)

	// ─── Seed Questions ────────────────────────────────────────────────
	if questionsPath == "" {
		return
	}

	data, err := os.ReadFile(questionsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", questionsPath).Msg("Failed to read question file")
	}

	var qf questionFile
	if err := json.Unmarshal(data, &qf); err != nil {
		log.Fatal().Err(err).Msg("Failed to parse question file")
	}

	for i, q := range qf.Questions {
		marks := q.Marks
		if marks == 0 {
			marks = 1
		}
		question := &model.Question{
			ExamID:        exam.ID,
			Text:          q.Text,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Marks:         marks,
			OrderNum:      i + 1,
		}
		if err := questionRepo.Create(ctx, question); err != nil {
			log.Fatal().Err(err).Int("index", i).Msg("Failed to create question")
		}
	}

	fmt.Printf("Seeded %d questions\n", len(qf.Questions))
}

func promptInt(reader *bufio.Reader, prompt string, fallback int) int {
	fmt.Print(prompt)
	raw, _ := reader.ReadString('\n')
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func promptBool(reader *bufio.Reader, prompt string, fallback bool) bool {
	fmt.Print(prompt)
	raw, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return fallback
	}
}
