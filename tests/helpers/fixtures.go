package helpers

import (
	"encoding/json"
)

// TestUser represents a test user fixture
type TestUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TestInterface represents a test interface fixture
type TestInterface struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Spec        map[string]interface{} `json:"spec"`
}

// TestTurn represents a test conversational turn request
type TestTurn struct {
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

// Default test fixtures
var (
	DefaultTestUser = TestUser{
		Email:    "test@example.com",
		Password: "test-password-123",
	}

	DefaultTestInterface = TestInterface{
		Name:        "Revenue Dashboard",
		Description: "A test dashboard for integration testing",
		Spec:        CreateDashboardSpec("revenue", "Monthly Revenue"),
	}

	DefaultTestTurn = TestTurn{
		Message: "Add a churn rate stat card next to the revenue chart",
		Mode:    "build",
	}
)

// CreateDashboardSpec creates a minimal valid dashboard spec with one stat
// card and one chart bound to the given metric.
func CreateDashboardSpec(metric, title string) map[string]interface{} {
	return map[string]interface{}{
		"components": []map[string]interface{}{
			{
				"id":   metric + "-stat",
				"type": "stat_card",
				"props": map[string]interface{}{
					"title":  title,
					"metric": metric,
				},
			},
			{
				"id":   metric + "-trend",
				"type": "line_chart",
				"props": map[string]interface{}{
					"title":  title + " Trend",
					"metric": metric,
					"window": "30d",
				},
			},
		},
		"design_tokens": map[string]interface{}{
			"color.primary": "#2563eb",
		},
	}
}

// CreateSpecWithUnknownComponent creates a spec containing one valid stat
// card and one component of a type no renderer knows.
func CreateSpecWithUnknownComponent() map[string]interface{} {
	return map[string]interface{}{
		"components": []map[string]interface{}{
			{
				"id":   "kpi-1",
				"type": "stat_card",
				"props": map[string]interface{}{
					"title":  "Active Users",
					"metric": "active_users",
				},
			},
			{
				"id":    "mystery-1",
				"type":  "hologram",
				"props": map[string]interface{}{},
			},
		},
		"design_tokens": map[string]interface{}{},
	}
}

// ToJSON converts a fixture to JSON string
func ToJSON(fixture interface{}) string {
	data, _ := json.Marshal(fixture)
	return string(data)
}

// FromJSON parses JSON string to map
func FromJSON(jsonStr string) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal([]byte(jsonStr), &result)
	return result
}

// CreateTestLoginRequest creates a login request payload
func CreateTestLoginRequest(email, password string) map[string]interface{} {
	return map[string]interface{}{
		"email":    email,
		"password": password,
	}
}

// CreateTestInterfaceRequest creates an interface creation request payload
func CreateTestInterfaceRequest(orgID, name, description string) map[string]interface{} {
	return map[string]interface{}{
		"org_id":      orgID,
		"name":        name,
		"description": description,
	}
}

// CreateTestTurnRequest creates a turn request payload
func CreateTestTurnRequest(threadID, interfaceID, message string) map[string]interface{} {
	return map[string]interface{}{
		"thread_id":    threadID,
		"interface_id": interfaceID,
		"message":      message,
	}
}

// CreateTestEditBatchRequest creates an edit batch request payload
func CreateTestEditBatchRequest(interfaceID string, actions []map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"interface_id": interfaceID,
		"actions":      actions,
	}
}

// MockRuntimeInvokeResponse creates a mock response from the agent runtime
func MockRuntimeInvokeResponse(runID, status string) map[string]interface{} {
	response := map[string]interface{}{
		"run_id": runID,
		"status": status,
	}

	if status == "completed" {
		response["preview_url"] = "https://preview.glasspane.dev/" + runID
	}

	return response
}
