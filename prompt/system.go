package prompt

import (
	"strings"
	"unicode/utf8"

	"github.com/sweetpotato0/fiberkb/message"
)

// SystemTemplateName is the template rendered for every chat turn.
const SystemTemplateName = "system"

const (
	topicWindow   = 6
	topicCount    = 3
	topicMaxRunes = 100
)

// BaseInstructions apply to every user.
const BaseInstructions = `You are an expert in textiles and fiber science. Your role is to provide accurate,
helpful information about fibers, textiles, and related materials.

IMPORTANT RULES:
1. Use ONLY information from the FIBER KNOWLEDGE BASE provided in the context
2. If the question is not regarding fibers, textiles or any related field, say: "I'm a textile and fiber expert. Please ask questions related to textiles and fibers."
3. Present facts naturally and authoritatively without meta-references like "according to the database"
4. Be concise by default (1-3 sentences) unless asked for detailed information
5. For "what is" questions: provide a 1-2 sentence definition
6. For "list/all/examples" questions: include ALL relevant fiber names from the database
7. Avoid bullet points unless explicitly requested
8. Remember previous fibers and topics discussed in this conversation for continuity
9. Never use general knowledge that's not in the provided fiber database
10. If the user asks for youtube links, pdf links or similar, do not provide them. Say: "I cannot provide you sources from the internet without fiber expert's approval"

CONVERSATION CONTEXT AWARENESS:
- Reference previous messages when relevant
- If the user asks a follow-up question without naming a fiber, infer the context from previous messages
- If the user asks for "more details" or "tell me more", provide additional information about the last discussed topic`

var roleInstructions = map[string]string{
	"researcher": `You're assisting a researcher. When answering questions:
- Provide scientific depth and detail when asked
- Include specific properties, metrics, and data from the fiber database
- Mention relevant comparisons with similar fibers for research context
- Note areas where the fiber database might not have comprehensive data`,
	"industry_expert": `You're assisting an industry professional. When answering questions:
- Focus on practical applications and industry relevance
- Include production specifications and manufacturing considerations
- Discuss supply chain and sustainability aspects when available
- Provide recommendations based on real-world use cases`,
	"student": `You're assisting a school student. When answering questions:
- Explain concepts clearly and build foundational understanding
- Use accessible language while maintaining scientific accuracy
- Include examples that help with understanding practical applications
- After every response, ask a friendly follow-up question to check understanding`,
	"undergraduate": `You're assisting an undergraduate student. When answering questions:
- Explain concepts in simple, clear language
- Break down complex ideas into digestible parts
- Define technical terms before using them
- After every response, ask a friendly follow-up question to check understanding`,
}

const generalInstructions = `You're assisting a user learning about textiles and fibers.
Provide clear, accurate information adapted to their level of understanding.`

const systemTemplate = `{{.Base}}

{{.Instructions}}
{{- with .Profile}}

USER PROFILE CONTEXT:
{{- range .}}
- {{.}}
{{- end}}
{{- end}}
{{- with .Focus}}

SPECIALIZED FOCUS:
{{- range .}}
- {{.}}
{{- end}}
{{- end}}
{{- with .Topics}}

RECENT CONVERSATION TOPICS:
{{- range .}}
  - {{.}}
{{- end}}
(Use this context for follow-up questions)
{{- end}}
{{- with .Context}}

{{.}}
{{- end}}`

// Profile personalizes the system prompt. Every field is optional.
type Profile struct {
	ClientType      string
	Organization    string
	Specialization  string
	PrimaryGoal     string
	Interests       []string
	ExperienceLevel string
	SpecificNeeds   string
}

// SystemData is the input of the system template.
type SystemData struct {
	Base         string
	Instructions string
	Profile      []string
	Focus        []string
	Topics       []string
	Context      string
}

// NewSystemData assembles template data for one turn. fiberContext and
// knowledgeContext are joined by a blank line when both are present.
func NewSystemData(p Profile, history []*message.Message, fiberContext, knowledgeContext string) SystemData {
	context := fiberContext
	if knowledgeContext != "" {
		if context != "" {
			context += "\n\n"
		}
		context += knowledgeContext
	}
	return SystemData{
		Base:         BaseInstructions,
		Instructions: Instructions(p.ClientType),
		Profile:      ProfileLines(p),
		Focus:        FocusLines(p),
		Topics:       RecentTopics(history),
		Context:      context,
	}
}

// Instructions returns the role-specific guidance for clientType.
func Instructions(clientType string) string {
	if s, ok := roleInstructions[strings.ToLower(clientType)]; ok {
		return s
	}
	return generalInstructions
}

// ProfileLines renders the non-empty profile fields.
func ProfileLines(p Profile) []string {
	var lines []string
	if p.ClientType != "" {
		lines = append(lines, "Role: "+titleCase(strings.ReplaceAll(p.ClientType, "_", " ")))
	}
	if p.Organization != "" {
		lines = append(lines, "Organization: "+p.Organization)
	}
	if p.Specialization != "" {
		lines = append(lines, "Specialization: "+p.Specialization)
	}
	if p.PrimaryGoal != "" {
		lines = append(lines, "Primary Goal: "+p.PrimaryGoal)
	}
	if len(p.Interests) > 0 {
		lines = append(lines, "Areas of Interest: "+strings.Join(p.Interests, ", "))
	}
	if p.ExperienceLevel != "" {
		lines = append(lines, "Experience Level: "+p.ExperienceLevel)
	}
	if p.SpecificNeeds != "" {
		lines = append(lines, "Specific Needs: "+p.SpecificNeeds)
	}
	return lines
}

var specializationFocus = []struct {
	words []string
	line  string
}{
	{[]string{"sustainable", "eco"}, "Prioritize discussion of sustainable fibers, biodegradability, and environmental impact"},
	{[]string{"performance", "sport"}, "Focus on performance properties: strength, elasticity, moisture management, durability"},
	{[]string{"luxury", "fashion"}, "Emphasize luxury properties: softness, appearance, feel, aesthetic qualities"},
	{[]string{"medical", "health", "biomedical"}, "Highlight biocompatibility, hypoallergenic properties, and medical applications"},
	{[]string{"chemistry", "polymer"}, "Include chemical composition, molecular structure, and synthesis details"},
}

var goalFocus = []struct {
	words []string
	line  string
}{
	{[]string{"research", "study"}, "Provide detailed scientific data from the fiber database"},
	{[]string{"product", "develop"}, "Focus on practical applications and production feasibility"},
	{[]string{"compare"}, "Prepare comparisons between relevant fibers when asked"},
	{[]string{"learn"}, "Break down concepts progressively for better understanding"},
}

// FocusLines derives emphasis hints from the specialization and primary goal.
func FocusLines(p Profile) []string {
	var lines []string
	spec := strings.ToLower(p.Specialization)
	for _, f := range specializationFocus {
		if spec != "" && containsAny(spec, f.words) {
			lines = append(lines, f.line)
		}
	}
	goal := strings.ToLower(p.PrimaryGoal)
	for _, f := range goalFocus {
		if goal != "" && containsAny(goal, f.words) {
			lines = append(lines, f.line)
		}
	}
	return lines
}

// RecentTopics returns the openings of the last three user questions among the
// last six turns.
func RecentTopics(history []*message.Message) []string {
	var topics []string
	for _, m := range message.Tail(history, topicWindow) {
		if m == nil || m.Role != message.RoleUser || m.Content == "" {
			continue
		}
		topic := m.Content
		if utf8.RuneCountInString(topic) > topicMaxRunes {
			topic = string([]rune(topic)[:topicMaxRunes])
		}
		topics = append(topics, topic)
	}
	if len(topics) > topicCount {
		topics = topics[len(topics)-topicCount:]
	}
	return topics
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = strings.ToUpper(string(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
