package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"taskpro/internal/models"

	"github.com/asaskevich/govalidator"
)

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  register          create an account")
	fmt.Println("  login             authenticate")
	fmt.Println("  list [filter]     list tasks (status, priority or free text)")
	fmt.Println("  view              show one task with tags/comments/attachments")
	fmt.Println("  create            create a task")
	fmt.Println("  status            change a task's status")
	fmt.Println("  comment           comment on a task")
	fmt.Println("  tag               tag a task")
	fmt.Println("  attach            upload a file to a task")
	fmt.Println("  delete            delete a task")
	fmt.Println("  stats             dashboard counters")
	fmt.Println("  users             active users for assignment")
	fmt.Println("  export            save all tasks as CSV")
}

func priorityFromChoice(choice string) string {
	switch choice {
	case "1":
		return models.PriorityLow
	case "2", "":
		return models.PriorityMedium
	case "3":
		return models.PriorityHigh
	case "4":
		return models.PriorityCritical
	}
	return ""
}

func statusFromChoice(choice string) string {
	switch choice {
	case "1":
		return models.StatusPending
	case "2":
		return models.StatusInProgress
	case "3":
		return models.StatusCompleted
	}
	return ""
}

// validateEmail checks the address before sending it to the server.
func validateEmail(email string) bool {
	if !govalidator.IsEmail(email) {
		fmt.Println("Invalid email")
		return false
	}
	return true
}

// validateDueDate accepts empty or YYYY-MM-DD.
func validateDueDate(date string) bool {
	if date == "" {
		return true
	}
	if !govalidator.Matches(date, `^\d{4}-\d{2}-\d{2}$`) {
		fmt.Println("Invalid due date, want YYYY-MM-DD")
		return false
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		fmt.Println("Invalid due date, want YYYY-MM-DD")
		return false
	}
	return true
}

func askTaskID() (int64, bool) {
	rl.SetPrompt("Enter task id: ")
	raw, _ := rl.Readline()
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		fmt.Println("Invalid task id")
		return 0, false
	}
	return id, true
}

// registerUser sends a request to create an account.
func registerUser(name, email, password string) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't register")
		return
	}
	if !validateEmail(email) {
		return
	}

	resp, err := client.R().
		SetBody(map[string]string{"name": name, "email": email, "password": password}).
		Post("/register")

	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	if resp.IsSuccess() {
		var result map[string]string
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			fmt.Println("Error parsing response:", err)
			return
		}
		token = result["token"]
		fmt.Println("Registration successful")
	} else {
		fmt.Println("Error:", string(resp.Body()))
	}
}

// loginUser sends a login request.
func loginUser(email, password string) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't login")
		return
	}

	resp, err := client.R().
		SetBody(map[string]string{"email": email, "password": password}).
		Post("/login")

	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	if resp.IsSuccess() {
		var result map[string]string
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			fmt.Println("Error parsing response:", err)
			return
		}
		token = result["token"]
		fmt.Println("Login successful")
	} else {
		fmt.Println("Error:", string(resp.Body()))
	}
}

// listTasks fetches one page of tasks; offline it falls back to the
// local cache.
func listTasks(filter string) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Read from local cache")
		cacheMutex.Lock()
		defer cacheMutex.Unlock()
		if len(localCache) == 0 {
			fmt.Println("No tasks found in cache")
			return
		}
		for _, t := range localCache {
			printTaskLine(t)
		}
		return
	}

	req := client.R().SetHeader("Authorization", "Bearer "+token)
	switch {
	case models.ValidStatus(filter):
		req.SetQueryParam("status", filter)
	case models.ValidPriority(filter):
		req.SetQueryParam("priority", filter)
	case filter != "":
		req.SetQueryParam("q", filter)
	}

	resp, err := req.Get("/api/tasks")
	if err != nil {
		fmt.Println("Error listing tasks:", err)
		return
	}
	if !resp.IsSuccess() {
		fmt.Println("Error:", string(resp.Body()))
		return
	}

	var list models.TaskList
	if err := json.Unmarshal(resp.Body(), &list); err != nil {
		fmt.Println("Error parsing response:", err)
		return
	}

	if list.Total == 0 {
		fmt.Println("No tasks found")
		return
	}

	cacheMutex.Lock()
	for _, t := range list.Tasks {
		localCache[t.ID] = t
	}
	cacheMutex.Unlock()

	fmt.Printf("Tasks (%d total, page %d):\n", list.Total, list.Page)
	for _, t := range list.Tasks {
		printTaskLine(t)
	}
}

func printTaskLine(t models.Task) {
	line := fmt.Sprintf("#%d [%s/%s] %s", t.ID, t.Status, t.Priority, t.Title)
	if t.DueDate != "" {
		line += " (due " + t.DueDate + ")"
	}
	if t.AssignedToName != "" {
		line += " -> " + t.AssignedToName
	}
	fmt.Println(line)
}

// viewTask fetches the full detail of one task.
func viewTask(id int64) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Read from local cache")
		cacheMutex.Lock()
		defer cacheMutex.Unlock()
		t, exists := localCache[id]
		if !exists {
			fmt.Println("Error: task not found in cache")
			return
		}
		printTaskLine(t)
		return
	}

	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+token).
		Get(fmt.Sprintf("/api/tasks/%d", id))
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if !resp.IsSuccess() {
		fmt.Println("Error:", string(resp.Body()))
		return
	}

	var detail models.TaskDetail
	if err := json.Unmarshal(resp.Body(), &detail); err != nil {
		fmt.Println("Error parsing response:", err)
		return
	}

	cacheMutex.Lock()
	localCache[detail.Task.ID] = detail.Task
	cacheMutex.Unlock()

	printTaskLine(detail.Task)
	if detail.Task.Description != "" {
		fmt.Println("  Description:", detail.Task.Description)
	}
	if detail.Task.CreatedByName != "" {
		fmt.Println("  Created by:", detail.Task.CreatedByName)
	}
	if len(detail.Tags) > 0 {
		names := make([]string, 0, len(detail.Tags))
		for _, tg := range detail.Tags {
			names = append(names, tg.Name)
		}
		fmt.Println("  Tags:", strings.Join(names, ", "))
	}
	for _, c := range detail.Comments {
		author := c.Author
		if author == "" {
			author = "unknown"
		}
		fmt.Printf("  Comment by %s: %s\n", author, c.Content)
	}
	for _, a := range detail.Attachments {
		fmt.Printf("  Attachment #%d: %s (%d bytes)\n", a.ID, a.Filename, a.SizeBytes)
	}
}

// createTask sends a create request.
func createTask(title, description, priority, dueDate string) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't create task")
		return
	}

	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+token).
		SetBody(map[string]string{
			"title":       title,
			"description": description,
			"priority":    priority,
			"due_date":    dueDate,
		}).
		Post("/api/tasks")

	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	if resp.IsSuccess() {
		var result map[string]int64
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			fmt.Println("Error parsing response:", err)
			return
		}
		fmt.Printf("Task #%d created\n", result["id"])
	} else {
		fmt.Println("Error:", string(resp.Body()))
	}
}

// setTaskStatus sends a status transition.
func setTaskStatus(id int64, status string) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't change status")
		return
	}

	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+token).
		SetBody(map[string]string{"status": status}).
		Post(fmt.Sprintf("/api/tasks/%d/status", id))

	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	if resp.IsSuccess() {
		cacheMutex.Lock()
		if t, exists := localCache[id]; exists {
			t.Status = status
			localCache[id] = t
		}
		cacheMutex.Unlock()
		fmt.Println("Status updated")
	} else {
		fmt.Println("Error:", string(resp.Body()))
	}
}

// addComment posts a comment.
func addComment(id int64, content string) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't comment")
		return
	}
	if content == "" {
		fmt.Println("Write a comment")
		return
	}

	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+token).
		SetBody(map[string]string{"content": content}).
		Post(fmt.Sprintf("/api/tasks/%d/comments", id))

	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	if resp.IsSuccess() {
		fmt.Println("Comment added")
	} else {
		fmt.Println("Error:", string(resp.Body()))
	}
}

// addTag attaches a tag.
func addTag(id int64, name string) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't tag")
		return
	}
	if name == "" {
		fmt.Println("Enter a tag name")
		return
	}

	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+token).
		SetBody(map[string]string{"name": name}).
		Post(fmt.Sprintf("/api/tasks/%d/tags", id))

	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	if resp.IsSuccess() {
		fmt.Println("Tag added")
	} else {
		fmt.Println("Error:", string(resp.Body()))
	}
}

// attachFile uploads a file to a task.
func attachFile(id int64, filePath string) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't upload")
		return
	}

	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+token).
		SetFile("file", filePath).
		Post(fmt.Sprintf("/api/tasks/%d/attachments", id))

	if err != nil {
		fmt.Println("Error uploading file:", err)
		return
	}

	if resp.IsSuccess() {
		fmt.Println("File attached")
	} else {
		fmt.Println("Error:", string(resp.Body()))
	}
}

// deleteTask sends a delete request.
func deleteTask(id int64) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't delete task")
		return
	}

	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+token).
		Delete(fmt.Sprintf("/api/tasks/%d", id))

	if err != nil {
		fmt.Println("Error deleting task:", err)
		return
	}

	if resp.IsSuccess() {
		cacheMutex.Lock()
		delete(localCache, id)
		cacheMutex.Unlock()
		fmt.Println("Task deleted")
	} else {
		fmt.Println("Error:", string(resp.Body()))
	}
}

// showStats prints the dashboard counters.
func showStats() {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't fetch stats")
		return
	}

	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+token).
		Get("/api/stats")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if !resp.IsSuccess() {
		fmt.Println("Error:", string(resp.Body()))
		return
	}

	var stats models.Stats
	if err := json.Unmarshal(resp.Body(), &stats); err != nil {
		fmt.Println("Error parsing response:", err)
		return
	}

	fmt.Printf("Pending: %d  In progress: %d  Completed: %d  Critical: %d  High: %d\n",
		stats.Pending, stats.InProgress, stats.Completed, stats.Critical, stats.High)
}

// listUsers prints active users for assignment.
func listUsers() {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't fetch users")
		return
	}

	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+token).
		Get("/api/users")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if !resp.IsSuccess() {
		fmt.Println("Error:", string(resp.Body()))
		return
	}

	var users []models.UserRef
	if err := json.Unmarshal(resp.Body(), &users); err != nil {
		fmt.Println("Error parsing response:", err)
		return
	}

	for _, u := range users {
		fmt.Printf("#%d %s\n", u.ID, u.Name)
	}
}

// exportTasks downloads the CSV export to a local file.
func exportTasks(path string) {
	if !isServerOnline.Load() {
		fmt.Println("Server is offline. Can't export")
		return
	}
	if path == "" {
		path = "tasks.csv"
	}

	resp, err := client.R().
		SetHeader("Authorization", "Bearer "+token).
		Get("/api/export/tasks.csv")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if !resp.IsSuccess() {
		fmt.Println("Error:", string(resp.Body()))
		return
	}

	if err := os.WriteFile(path, resp.Body(), 0o644); err != nil {
		fmt.Println("Error writing file:", err)
		return
	}
	fmt.Println("Exported to", path)
}

// checkAuth checks if the user is authenticated by verifying the presence of a token.
func checkAuth() bool {
	if token == "" {
		fmt.Println("You need to login first")
		return false
	}
	return true
}

// checkServerAvailability continuously checks the availability of the server.
func checkServerAvailability() {
	for {
		resp, err := client.R().Get("/healthz")

		isServerOnline.Store(err == nil && resp.IsSuccess())

		time.Sleep(1 * time.Second)
	}
}
