package rag

import (
	"fmt"
	"strings"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
)

// Prompt building for the summarizer collaborator. The service supports
// English and Arabic responses; anything else falls back to English.

const systemPromptEN = "You are a helpful and data-driven Dubai traffic assistant. " +
	"Use the provided context to answer the user's traffic-related query. " +
	"Respond with actionable insights and short bullet points starting with '*'."

const systemPromptAR = "أنت مساعد مروري في دبي مفيد ومعتمد على البيانات. " +
	"استخدم السياق المقدم للإجابة على استفسار المستخدم المتعلق بالمرور. " +
	"اجب برؤى قابلة للتطبيق ونقاط قصيرة تبدأ بـ '*'. " +
	"يجب أن تكون إجابتك باللغة العربية."

// BuildPrompt renders the system and user prompts for the given ranked
// segments in the requested language.
func BuildPrompt(query string, segments []domain.Segment, language string) (system, user string) {
	var b strings.Builder
	if language == "ar" {
		b.WriteString("بيانات المرور ذات الصلة:\n")
		for i, seg := range segments {
			fmt.Fprintf(&b, "\n%d. %s %d - %s\n", i+1, seg.Month, seg.Year, seg.StreetName)
			fmt.Fprintf(&b, "   متوسط السرعة: %.1f كم/س، المسافة: %.0fم\n", seg.AverageSpeed, seg.Distance)
		}
		user = fmt.Sprintf("%s\n\nسؤال المستخدم: %s\n\nالجواب:", b.String(), query)
		return systemPromptAR, user
	}

	b.WriteString("RELEVANT TRAFFIC DATA:\n")
	for i, seg := range segments {
		fmt.Fprintf(&b, "\n%d. %s %d - %s\n", i+1, seg.Month, seg.Year, seg.StreetName)
		fmt.Fprintf(&b, "   Avg Speed: %.1f km/h, Distance: %.0fm\n", seg.AverageSpeed, seg.Distance)
	}
	user = fmt.Sprintf("%s\n\nUser Question: %s\n\nAnswer:", b.String(), query)
	return systemPromptEN, user
}

// FallbackAnalysis is the fixed message substituted when the summarizer
// cannot produce a response.
func FallbackAnalysis(language string) string {
	if language == "ar" {
		return "غير قادر على إنشاء التحليل في هذا الوقت."
	}
	return "Unable to generate analysis at this time."
}
