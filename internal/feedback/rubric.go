package feedback

// DefaultCategory is the rubric used for unrecognized categories.
const DefaultCategory = "Conversations"

// rubrics holds the weighted scoring criteria embedded in the prompt, keyed
// by session category.
var rubrics = map[string]string{
	"Interviews": "Scoring weights: Relevance 30%, Confidence 30%, Clarity 25%, Engagement 15%. " +
		"Relevance: Did they answer the question asked? Were examples specific and structured (STAR method)? " +
		"Confidence: Did they project authority without arrogance? Minimal hedging and filler words? " +
		"Clarity: Were answers concise and well-organized? Easy to follow? " +
		"Engagement: Did they build rapport with the interviewer? Ask good questions back?",
	"Presentations": "Scoring weights: Clarity 30%, Confidence 25%, Engagement 25%, Relevance 20%. " +
		"Clarity: Was the structure clear (intro, body, conclusion)? Were key points easy to identify? " +
		"Confidence: Did they project executive presence? Strong vocal delivery? " +
		"Engagement: Did they hold attention? Use stories or data effectively? " +
		"Relevance: Did the content match the presentation context?",
	"Public Speaking": "Scoring weights: Engagement 30%, Confidence 25%, Clarity 25%, Relevance 20%. " +
		"Engagement: Did the audience stay hooked? Were there emotional peaks? " +
		"Confidence: Was delivery commanding? Good use of pauses and emphasis? " +
		"Clarity: Was the message clear and memorable? Well-structured narrative? " +
		"Relevance: Did the speech match the occasion and audience?",
	"Conversations": "Scoring weights: Engagement 30%, Clarity 25%, Confidence 25%, Relevance 20%. " +
		"Engagement: Did they keep the conversation flowing? Ask good follow-ups? " +
		"Clarity: Were they easy to understand? Did they express thoughts coherently? " +
		"Confidence: Were they comfortable and natural? Not overly nervous? " +
		"Relevance: Did they stay on topic and respond appropriately?",
	"Debates": "Scoring weights: Relevance 35%, Clarity 25%, Confidence 25%, Engagement 15%. " +
		"Relevance: Did arguments directly address the topic? Were rebuttals on point? " +
		"Clarity: Were arguments logically structured and easy to follow? " +
		"Confidence: Did they stand firm under pressure? Project conviction? " +
		"Engagement: Did they acknowledge opposing points? Maintain respectful dialogue?",
	"Storytelling": "Scoring weights: Engagement 35%, Clarity 25%, Confidence 20%, Relevance 20%. " +
		"Engagement: Was the story captivating? Did it have emotional hooks? " +
		"Clarity: Was the narrative arc clear (setup, tension, resolution)? " +
		"Confidence: Was delivery natural and expressive? " +
		"Relevance: Did the story match the prompt and convey a clear message?",
	"Phone Anxiety": "Scoring weights: Confidence 35%, Clarity 30%, Relevance 25%, Engagement 10%. " +
		"Confidence: Did they sound calm and composed? Minimal hesitation? " +
		"Clarity: Were requests/information stated clearly? Easy to understand? " +
		"Relevance: Did they accomplish the phone call objective? " +
		"Engagement: Were they polite and appropriately conversational?",
	"Dating & Social": "Scoring weights: Engagement 35%, Confidence 30%, Relevance 20%, Clarity 15%. " +
		"Engagement: Was there genuine chemistry and curiosity? Good questions asked? " +
		"Confidence: Were they comfortable, natural, not overly eager or aloof? " +
		"Relevance: Did they respond appropriately to social cues? " +
		"Clarity: Were they articulate and easy to talk to?",
	"Conflict & Boundaries": "Scoring weights: Confidence 30%, Relevance 30%, Clarity 25%, Engagement 15%. " +
		"Confidence: Did they stay assertive without being aggressive? Hold firm? " +
		"Relevance: Did they address the actual issue directly? Stay on point? " +
		"Clarity: Was their message unambiguous? Were expectations clearly stated? " +
		"Engagement: Did they listen to the other side and show empathy?",
	"Social Situations": "Scoring weights: Engagement 35%, Confidence 25%, Clarity 25%, Relevance 15%. " +
		"Engagement: Did they keep the social interaction flowing? Show genuine interest? " +
		"Confidence: Were they approachable and comfortable? Natural body language? " +
		"Clarity: Did they express themselves clearly and concisely? " +
		"Relevance: Did they read social cues and respond appropriately?",
}

// RubricFor returns the rubric for category, or the Conversations rubric
// when the category is unknown.
func RubricFor(category string) string {
	if r, ok := rubrics[category]; ok {
		return r
	}
	return rubrics[DefaultCategory]
}

// Categories lists the categories with a dedicated rubric.
func Categories() []string {
	return []string{
		"Interviews",
		"Presentations",
		"Public Speaking",
		"Conversations",
		"Debates",
		"Storytelling",
		"Phone Anxiety",
		"Dating & Social",
		"Conflict & Boundaries",
		"Social Situations",
	}
}
