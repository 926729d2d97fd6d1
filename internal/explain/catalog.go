package explain

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ptBR = map[string]string{
	"PERSONA %s (version %d)":             "PERSONA %s (versão %d)",
	"TOPIC AFFINITY:":                     "AFINIDADE POR TEMA:",
	"TONE & STYLE:":                       "TOM E ESTILO:",
	"- Sentence length: %s":               "- Tamanho das frases: %s",
	"- Question frequency: %.1f%%":        "- Frequência de perguntas: %.1f%%",
	"- Humor frequency: %.1f%%":           "- Frequência de humor: %.1f%%",
	"- Emotional intensity: %s":           "- Intensidade emocional: %s",
	"- Formality: %s":                     "- Formalidade: %s",
	"- Contrarian tolerance: %.1f%%":      "- Tolerância a opiniões contrárias: %.1f%%",
	"- Certainty level: %s":               "- Nível de certeza: %s",
	"ENGAGEMENT BEHAVIOR:":                "COMPORTAMENTO DE ENGAJAMENTO:",
	"- Likes per day: %.1f":               "- Curtidas por dia: %.1f",
	"- Replies per day: %.1f":             "- Respostas por dia: %.1f",
	"- Early engagement tendency: %.1f%%": "- Tendência de engajamento cedo: %.1f%%",
	"RISK SENSITIVITY:":                   "SENSIBILIDADE A RISCO:",
	"- Hot takes comfort: %.1f%%":         "- Conforto com opiniões polêmicas: %.1f%%",
	"- Safe vs experimental: %.1f%%":      "- Seguro vs experimental: %.1f%%",
	"- Challenge others tendency: %.1f%%": "- Tendência a desafiar outros: %.1f%%",
	"ENERGY:":                             "ENERGIA:",
	"- Posts per day: %d":                 "- Posts por dia: %d",
	"- Follows per day: %d":               "- Follows por dia: %d",
	"- Preferred posting times: %s":       "- Horários preferidos: %s",
	"No changes yet.":                     "Nenhuma mudança ainda.",
}

func init() {
	tag := language.MustParse("pt-BR")
	for key, msg := range ptBR {
		if err := message.SetString(tag, key, msg); err != nil {
			panic(err)
		}
	}
}
