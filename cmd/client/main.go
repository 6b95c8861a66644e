package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"taskpro/internal/models"

	"github.com/chzyer/readline"
	"github.com/go-resty/resty/v2"
)

var token string
var client *resty.Client
var localCache = make(map[int64]models.Task)
var cacheMutex sync.Mutex
var isServerOnline atomic.Bool
var rl *readline.Instance

var (
	buildVersion = "N/A"
	buildDate    = "N/A"
)

func init_() {
	isServerOnline.Store(true)

	baseURL := os.Getenv("TASKPRO_SERVER")
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}

	client = resty.New()
	client.SetBaseURL(baseURL)

	var err error
	rl, err = readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     "/tmp/taskpro_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize readline: %v", err)
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
}

// completer is a AutoComplete function for readline.
func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("register"),
		readline.PcItem("login"),
		readline.PcItem("list"),
		readline.PcItem("view"),
		readline.PcItem("create"),
		readline.PcItem("status"),
		readline.PcItem("comment"),
		readline.PcItem("tag"),
		readline.PcItem("attach"),
		readline.PcItem("delete"),
		readline.PcItem("stats"),
		readline.PcItem("users"),
		readline.PcItem("export"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

func main() {
	init_()
	printUsage()

	go checkServerAvailability()

	for {
		command, err := rl.Readline()
		if err != nil {
			break
		}

		command = strings.TrimSpace(command)
		if command == "" {
			continue
		}

		switch command {
		case "register":
			rl.SetPrompt("Enter name: ")
			name, _ := rl.Readline()
			rl.SetPrompt("Enter email: ")
			email, _ := rl.Readline()
			password, _ := rl.ReadPassword("Enter password: ")
			registerUser(strings.TrimSpace(name), strings.TrimSpace(email), string(password))
		case "login":
			rl.SetPrompt("Enter email: ")
			email, _ := rl.Readline()
			password, _ := rl.ReadPassword("Enter password: ")
			loginUser(strings.TrimSpace(email), string(password))
		case "list":
			if !checkAuth() {
				continue
			}
			rl.SetPrompt("Filter (status/priority/text, empty for all): ")
			filter, _ := rl.Readline()
			listTasks(strings.TrimSpace(filter))
		case "view":
			if !checkAuth() {
				continue
			}
			id, ok := askTaskID()
			if !ok {
				rl.SetPrompt("> ")
				continue
			}
			viewTask(id)
		case "create":
			if !checkAuth() {
				continue
			}
			rl.SetPrompt("Title: ")
			title, _ := rl.Readline()
			title = strings.TrimSpace(title)
			if title == "" {
				fmt.Println("Title is required")
				rl.SetPrompt("> ")
				continue
			}
			rl.SetPrompt("Description: ")
			description, _ := rl.Readline()

			fmt.Println("Select priority:")
			fmt.Println("1. low")
			fmt.Println("2. medium")
			fmt.Println("3. high")
			fmt.Println("4. critical")
			rl.SetPrompt("Enter choice (1-4, default 2): ")
			choice, _ := rl.Readline()
			priority := priorityFromChoice(strings.TrimSpace(choice))
			if priority == "" {
				fmt.Println("Invalid choice")
				rl.SetPrompt("> ")
				continue
			}

			rl.SetPrompt("Due date (YYYY-MM-DD, empty for none): ")
			dueDate, _ := rl.Readline()
			dueDate = strings.TrimSpace(dueDate)
			if !validateDueDate(dueDate) {
				rl.SetPrompt("> ")
				continue
			}

			createTask(title, strings.TrimSpace(description), priority, dueDate)
		case "status":
			if !checkAuth() {
				continue
			}
			id, ok := askTaskID()
			if !ok {
				rl.SetPrompt("> ")
				continue
			}
			fmt.Println("Select status:")
			fmt.Println("1. pending")
			fmt.Println("2. in_progress")
			fmt.Println("3. completed")
			rl.SetPrompt("Enter choice (1-3): ")
			choice, _ := rl.Readline()
			status := statusFromChoice(strings.TrimSpace(choice))
			if status == "" {
				fmt.Println("Invalid choice")
				rl.SetPrompt("> ")
				continue
			}
			setTaskStatus(id, status)
		case "comment":
			if !checkAuth() {
				continue
			}
			id, ok := askTaskID()
			if !ok {
				rl.SetPrompt("> ")
				continue
			}
			rl.SetPrompt("Comment: ")
			content, _ := rl.Readline()
			addComment(id, strings.TrimSpace(content))
		case "tag":
			if !checkAuth() {
				continue
			}
			id, ok := askTaskID()
			if !ok {
				rl.SetPrompt("> ")
				continue
			}
			rl.SetPrompt("Tag name: ")
			name, _ := rl.Readline()
			addTag(id, strings.TrimSpace(name))
		case "attach":
			if !checkAuth() {
				continue
			}
			id, ok := askTaskID()
			if !ok {
				rl.SetPrompt("> ")
				continue
			}
			rl.SetPrompt("Enter file path: ")
			filePath, _ := rl.Readline()
			filePath = strings.TrimSpace(filePath)
			if _, err := os.Stat(filePath); os.IsNotExist(err) {
				fmt.Printf("File not found: %s\n", filePath)
				rl.SetPrompt("> ")
				continue
			}
			attachFile(id, filePath)
		case "delete":
			if !checkAuth() {
				continue
			}
			id, ok := askTaskID()
			if !ok {
				rl.SetPrompt("> ")
				continue
			}
			deleteTask(id)
		case "stats":
			if !checkAuth() {
				continue
			}
			showStats()
		case "users":
			if !checkAuth() {
				continue
			}
			listUsers()
		case "export":
			if !checkAuth() {
				continue
			}
			rl.SetPrompt("Output path (default tasks.csv): ")
			path, _ := rl.Readline()
			exportTasks(strings.TrimSpace(path))
		case "help":
			printUsage()
		case "exit":
			return
		default:
			fmt.Println("Unknown command. Available commands: register, login, list, view, create, status, comment, tag, attach, delete, stats, users, export, help, exit")
			printUsage()
		}
		rl.SetPrompt("> ")
	}
}
