package stub

import (
	"encoding/json"

	"pairprep/internal/platform"
)

// seedQuestions returns the built-in question bank. Inputs deliberately mix
// structured JSON and loosely formatted strings so the client's relaxed
// parsing stays honest against the stub.
func seedQuestions() map[string]platform.Question {
	questions := []platform.Question{
		{
			ID:          "q-two-sum",
			Title:       "Two Sum",
			Difficulty:  "easy",
			Topics:      []string{"arrays", "hash table"},
			Description: "Given an array of integers nums and an integer target, return indices of the two numbers that add up to target.",
			Examples: []platform.Example{
				{Input: "nums = [2,7,11,15], target = 9", Output: "[0,1]"},
			},
			TestCases: []platform.TestCase{
				{Input: json.RawMessage(`"nums = [2,7,11,15], target = 9"`), Output: json.RawMessage(`"[0,1]"`)},
				{Input: json.RawMessage(`{"nums": [3,2,4], "target": 6}`), Output: json.RawMessage(`[1,2]`)},
				{Input: json.RawMessage(`"nums = [3,3], target = 6"`), Output: json.RawMessage(`"[0,1]"`)},
			},
		},
		{
			ID:          "q-valid-parentheses",
			Title:       "Valid Parentheses",
			Difficulty:  "easy",
			Topics:      []string{"strings", "stack"},
			Description: "Given a string s containing just the characters ()[]{}, determine if the input string is valid.",
			Examples: []platform.Example{
				{Input: `s = "()[]{}"`, Output: "true"},
			},
			TestCases: []platform.TestCase{
				{Input: json.RawMessage(`"s = \"()[]{}\""`), Output: json.RawMessage(`true`)},
				{Input: json.RawMessage(`"s = \"(]\""`), Output: json.RawMessage(`false`)},
			},
		},
		{
			ID:          "q-reverse-linked-list",
			Title:       "Reverse Linked List",
			Difficulty:  "medium",
			Topics:      []string{"linked list"},
			Description: "Given the head of a singly linked list, reverse the list and return the reversed list.",
			Examples: []platform.Example{
				{Input: "head = [1,2,3,4,5]", Output: "[5,4,3,2,1]"},
			},
			TestCases: []platform.TestCase{
				{Input: json.RawMessage(`"head = [1,2,3,4,5]"`), Output: json.RawMessage(`"[5,4,3,2,1]"`)},
				{Input: json.RawMessage(`"head = []"`), Output: json.RawMessage(`"[]"`)},
			},
		},
	}

	bank := make(map[string]platform.Question, len(questions))
	for _, q := range questions {
		bank[q.ID] = q
	}
	return bank
}
