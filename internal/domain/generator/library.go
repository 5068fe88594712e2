package generator

import (
	"context"
	"encoding/json"
	"math/rand"
	"storynest/internal/domain/story"
	"strings"

	"github.com/sirupsen/logrus"
)

// Tale is a story bundled with the offline library.
type Tale struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Keywords   []string `json:"keywords"`
	Paragraphs []string `json:"paragraphs"`
	Moral      string   `json:"moral"`
}

// SampleLibrary is an offline TextGenerator. It answers every prompt with one
// of a few classic tales, picked by topic keywords found in the prompt, so the
// pipeline can run without any credentials.
type SampleLibrary struct {
	Name  string
	Tales []Tale
	pick  func(n int) int
}

// NewSampleLibrary returns the built-in collection.
func NewSampleLibrary() *SampleLibrary {
	return &SampleLibrary{
		Name:  "Classic Tales Collection",
		Tales: classicTales,
		pick:  rand.Intn,
	}
}

// GenerateText implements TextGenerator. With params.JSON set the tale is
// returned as a JSON object, otherwise as title-first plain text.
func (l *SampleLibrary) GenerateText(ctx context.Context, prompt string, params Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(l.Tales) == 0 {
		return "", story.ErrEmptyOutput
	}

	tale := l.match(prompt)
	logrus.WithFields(logrus.Fields{
		"library": l.Name,
		"tale":    tale.ID,
	}).Debug("Serving tale from offline library")

	if params.JSON {
		out, err := json.Marshal(map[string]any{
			"title":      tale.Title,
			"paragraphs": tale.Paragraphs,
		})
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return tale.Title + "\n\n" + strings.Join(tale.Paragraphs, "\n\n"), nil
}

func (l *SampleLibrary) match(prompt string) Tale {
	topic := strings.ToLower(topicLine(prompt))
	var candidates []Tale
	for _, t := range l.Tales {
		for _, kw := range t.Keywords {
			if strings.Contains(topic, kw) {
				candidates = append(candidates, t)
				break
			}
		}
	}
	if len(candidates) == 0 {
		candidates = l.Tales
	}
	pick := l.pick
	if pick == nil {
		pick = rand.Intn
	}
	return candidates[pick(len(candidates))]
}

// topicLine returns the "Topic:" line of a story prompt, or the whole prompt.
func topicLine(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "Topic:"); ok {
			return rest
		}
	}
	return prompt
}

var classicTales = []Tale{
	{
		ID:       "goldilocks",
		Title:    "Goldilocks and the Three Bears",
		Author:   "Traditional",
		Keywords: []string{"animal", "bear", "person", "girl"},
		Moral:    "respect other people's things",
		Paragraphs: []string{
			"Once upon a time, three bears lived in a cosy cottage at the edge of the woods. One morning they made porridge, and while it cooled they went for a walk.",
			"A curious little girl named Goldilocks found the cottage. She tasted the porridge, sat in every chair and finally fell asleep in the smallest bed.",
			"When the bears came home they found their porridge eaten and their chairs moved. Little Bear cried, \"Someone is sleeping in my bed!\"",
			"Goldilocks woke with a start, said sorry to the bears and ran all the way home. From then on she always knocked and asked before going in.",
		},
	},
	{
		ID:       "three-pigs",
		Title:    "The Three Little Pigs",
		Author:   "Traditional",
		Keywords: []string{"animal", "pig", "wolf", "mix"},
		Moral:    "hard work pays off",
		Paragraphs: []string{
			"Once there were three little pigs who left home to build houses of their own.",
			"The first pig built a house of straw and the second a house of sticks. They finished quickly and played all afternoon. The third pig worked all day on a house of bricks.",
			"A hungry wolf huffed and puffed and blew down the straw house and the stick house. The two pigs ran to their brother's brick house.",
			"The wolf huffed and puffed until he was out of breath, but the brick house stood firm. The three pigs were safe and warm together.",
		},
	},
	{
		ID:       "red-riding-hood",
		Title:    "Little Red Riding Hood",
		Author:   "Traditional",
		Keywords: []string{"person", "girl", "wolf", "grandmother"},
		Moral:    "be careful with strangers",
		Paragraphs: []string{
			"Little Red Riding Hood lived with her mother in a cottage near the forest. One day she took a basket of cakes to her grandmother.",
			"On the path she met a smiling wolf who asked where she was going. She told him, and the wolf hurried ahead by a shorter way.",
			"At grandmother's house Red Riding Hood noticed big ears, big eyes and very big teeth. A passing woodcutter heard her shout and chased the wolf away.",
			"Grandmother hugged her tight, and Red Riding Hood promised never again to talk to strangers in the woods.",
		},
	},
	{
		ID:       "space-cat",
		Title:    "Captain Whiskers' Space Adventure",
		Author:   "Luna Starweaver",
		Keywords: []string{"animal", "cat", "space", "random"},
		Moral:    "courage grows when you help others",
		Paragraphs: []string{
			"Captain Whiskers was no ordinary cat. He had his own spaceship, a shiny helmet and a map of every star.",
			"One night a tiny robot sent a signal: its moon had lost its light. Captain Whiskers pushed the big red button and zoomed away.",
			"On the dark moon he found the light crystal stuck under a rock. He pushed and purred and pushed again until it rolled free.",
			"The moon glowed silver once more. The little robot waved goodbye, and Captain Whiskers flew home just in time for a warm bowl of milk.",
		},
	},
	{
		ID:       "magic-garden",
		Title:    "The Secret Magic Garden",
		Author:   "Rose Greenthumb",
		Keywords: []string{"fruit", "garden", "apple", "person", "mix"},
		Moral:    "sharing makes things grow",
		Paragraphs: []string{
			"Behind the old oak tree, Emma discovered a hidden gate covered in ivy.",
			"Inside grew talking apples, giggling strawberries and a pear tree that hummed lullabies.",
			"The garden was sad because nobody ever came to share its fruit. Emma invited all her friends to a picnic under the humming tree.",
			"Every time a fruit was shared, two new blossoms opened. Soon the secret garden was the happiest place in the whole town.",
		},
	},
}
