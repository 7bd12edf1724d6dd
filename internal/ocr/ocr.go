package ocr

// Recognizer defines the interface for turning a receipt image into raw
// text. Implementations must preserve the line breaks the engine detected,
// since downstream heuristics lean on line structure.
type Recognizer interface {
	// RecognizeText returns the recognized text for an image or PDF.
	RecognizeText(image []byte, contentType string) (string, error)
	// Close releases engine resources.
	Close() error
}

// transcriptionPrompt is shared by the LLM-backed recognizers. Unlike a
// field-extraction prompt, it asks for a verbatim transcription so the
// heuristic extractors see the same text a conventional OCR engine would
// produce.
const transcriptionPrompt = `You are transcribing a receipt or invoice image. Read every piece of text in the image and return it verbatim.

Rules:
- Output the raw text only, with one line of output per visual line on the receipt
- Preserve the top-to-bottom order of the lines
- Keep numbers, punctuation and currency symbols exactly as printed
- Do not summarize, label, translate or interpret anything
- Do not use markdown code blocks`
