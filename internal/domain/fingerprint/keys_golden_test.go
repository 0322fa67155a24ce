package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// publishedOrder is the PubChem key list for the sections defined by static
// name tables, first bit first.
var publishedOrder = []struct {
	section Section
	names   []string
}{
	{SectionAtomPairs, []string{
		// 263
		"Li-H", "Li-Li", "Li-B", "Li-C", "Li-O",
		"Li-F", "Li-P", "Li-S", "Li-Cl", "B-H",
		// 273
		"B-B", "B-C", "B-N", "B-O", "B-F",
		"B-Si", "B-P", "B-S", "B-Cl", "B-Br",
		// 283
		"C-H", "C-C", "C-N", "C-O", "C-F",
		"C-Na", "C-Mg", "C-Al", "C-Si", "C-P",
		// 293
		"C-S", "C-Cl", "C-As", "C-Se", "C-Br",
		"C-I", "N-H", "N-N", "N-O", "N-F",
		// 303
		"N-Si", "N-P", "N-S", "N-Cl", "N-Br",
		"O-H", "O-O", "O-Mg", "O-Na", "O-Al",
		// 313
		"O-Si", "O-P", "O-K", "F-P", "F-S",
		"Al-H", "Al-Cl", "Si-H", "Si-Si", "Si-Cl",
		// 323
		"P-H", "P-P", "As-H", "As-As",
	}},
	{SectionNeighbors, []string{
		// 327
		"C(~Br)(~C)", "C(~Br)(~C)(~C)", "C(~Br)(~H)", "C(~Br)(:c)", "C(~Br)(:n)",
		"C(~C)(~C)", "C(~C)(~C)(~C)", "C(~C)(~C)(~C)(~C)", "C(~C)(~C)(~C)(~H)", "C(~C)(~C)(~C)(~N)",
		// 337
		"C(~C)(~C)(~C)(~O)", "C(~C)(~C)(~H)(~N)", "C(~C)(~C)(~H)(~O)", "C(~C)(~C)(~N)", "C(~C)(~C)(~O)",
		"C(~C)(~Cl)", "C(~C)(~Cl)(~H)", "C(~C)(~H)", "C(~C)(~H)(~N)", "C(~C)(~H)(~O)",
		// 347
		"C(~C)(~H)(~O)(~O)", "C(~C)(~H)(~P)", "C(~C)(~H)(~S)", "C(~C)(~I)", "C(~C)(~N)",
		"C(~C)(~N)(~N)", "C(~C)(~N)(~O)", "C(~C)(~O)", "C(~C)(~O)(~O)", "C(~C)(~P)",
		// 357
		"C(~C)(~S)", "C(~C)(:c)", "C(~C)(:c)(:c)", "C(~C)(:c)(:n)", "C(~C)(:n)",
		"C(~C)(:n)(:n)", "C(~Cl)(~Cl)", "C(~Cl)(~H)", "C(~Cl)(:c)", "C(~F)(~F)",
		// 367
		"C(~F)(:c)", "C(~H)(~N)", "C(~H)(~O)", "C(~H)(~O)(~O)", "C(~H)(~S)",
		"C(~H)(~Si)", "C(~H)(:c)", "C(~H)(:c)(:c)", "C(~H)(:c)(:n)", "C(~H)(:n)",
		// 377
		"C(~H)(~H)(~H)", "C(~N)(~N)", "C(~N)(:c)", "C(~N)(:c)(:n)", "C(~N)(:n)",
		"C(~O)(~O)", "C(~O)(:c)", "C(~O)(:c)(:c)", "C(~S)(:c)", "C(:c)(:c)",
		// 387
		"C(:c)(:c)(:c)", "C(:c)(:c)(:n)", "C(:c)(:n)", "C(:c)(:n)(:n)", "C(:n)(:n)",
		"N(~C)(~C)", "N(~C)(~C)(~C)", "N(~C)(~C)(~H)", "N(~C)(~H)", "N(~C)(~H)(~N)",
		// 397
		"N(~C)(~O)", "N(~C)(:c)", "N(~C)(:c)(:c)", "N(~H)(~N)", "N(~H)(:c)",
		"N(~H)(:c)(:c)", "N(~O)(~O)", "N(~O)(:o)", "N(:c)(:c)", "O(~C)(~C)",
		// 407
		"O(~C)(~H)", "O(~C)(~P)", "O(~H)(~S)", "O(:c)(:c)", "P(~C)(~C)",
		"P(~O)(~O)", "S(~C)(~C)", "S(~C)(~H)", "S(~C)(~O)",
	}},
	{SectionNeighborhoods, []string{
		// 416
		"C(-C)(-C)(=C)", "C(-C)(-C)(=N)", "C(-C)(-C)(=O)", "C(-C)(-Cl)(=O)", "C(-C)(-H)(=C)",
		"C(-C)(-H)(=N)", "C(-C)(-H)(=O)", "C(-C)(-N)(=C)", "C(-C)(-N)(=N)", "C(-C)(-N)(=O)",
		// 426
		"C(-C)(-O)(=O)", "C(-C)(=C)", "C(-C)(=N)", "C(-C)(=O)", "C(-Cl)(=O)",
		"C(-H)(-N)(=C)", "C(-H)(=C)", "C(-H)(=N)", "C(-H)(=O)", "C(-N)(=C)",
		// 436
		"C(-N)(=N)", "C(-N)(=O)", "C(-O)(=O)", "N(-C)(=C)", "N(-C)(=O)",
		"N(-O)(=O)", "P(-O)(=O)", "S(-C)(=O)", "S(-O)(=O)", "S(=O)(=O)",
		// 446
		"C(-C)(#C)", "C(-C)(#N)", "C(-H)(#C)", "C(-N)(#N)", "C(=C)(=C)",
		"C(-C)(=S)", "C(-N)(=S)", "C(-S)(=O)", "C(-O)(=S)", "N(-N)(=N)",
		// 456
		"N(-C)(=N)", "P(-C)(=O)", "P(-O)(=S)", "Si(-C)(-O)",
	}},
	{SectionPaths, []string{
		// 460
		"C-C-C#C", "O-C-C=N", "O-C-C=O", "N:C-S-[#1]", "N-C-C=C",
		"O=S-C-C", "N#C-C=C", "C=N-N-C", "O=S-C-N", "S-S-C:C",
		// 470
		"C:C-C=C", "S:C:C:C", "C:N:C-C", "S-C:N:C", "S:C:C:N",
		"S-C=N-C", "C-O-C=C", "N-N-C:C", "S-C=N-[#1]", "S-C-S-C",
		// 480
		"C:S:C-C", "O-S-C:C", "C:N-C:C", "N-S-C:C", "N-C:N:C",
		"N:C:C:N", "N-C:N:N", "N-C=N-C", "N-C=N-[#1]", "N-C-S-C",
		// 490
		"C-C-C=C", "C-N:C-[#1]", "N-C:O:C", "O=C-C:C", "O=C-C:N",
		"C-N-C:C", "N:N-C-[#1]", "O-C:C-N", "O-C=C-C", "N-C:C-N",
		// 500
		"C-S-C:C", "Cl-C:C-C", "N-C=C-[#1]", "Cl-C:C-[#1]", "N:C:N-C",
		"Cl-C:C-O", "C-C:N:C", "C-C-S-C", "S=C-N-C", "Br-C:C:C",
		// 510
		"[#1]-N-N-[#1]", "S=C-N-[#1]", "C-[As]-O-[#1]", "S:C:C-[#1]", "O-N-C-C",
		"N-N-C-C", "[#1]-C=C-[#1]", "N-N-C-N", "O=C-N-N", "N=C-N-C",
		// 520
		"C=C-C:C", "C:N-C-[#1]", "C-N-N-[#1]", "N:C:C-C", "C-C=C-C",
		"[As]-C:C-[#1]", "Cl-C:C-Cl", "C:C:N-[#1]", "[#1]-N-C-[#1]", "Cl-C-C-Cl",
		// 530
		"N:C-C:C", "S-C:C-C", "S-C:C-[#1]", "S-C:C-N", "S-C:C-O",
		"O=C-C-C", "O=C-C-N", "O=C-C-O", "N=C-C=C", "O=C-C=C",
		// 540
		"C:C-O-[#1]", "Cl-C-C-C", "Br-C-C-C", "O-C-C-O", "N-C-C-N",
		"O-C-C-N", "C-O-C-C", "C-N-C-C", "C-C-C-C", "O=C-O-C",
		// 550
		"O=C-O-[#1]", "O=C-N-C", "O=C-N-[#1]", "N#C-C-C", "N#C-C:C",
		"C-C-C-O", "C-C-C-N", "C-C-O-[#1]", "C-C-N-[#1]", "[#1]-C-C-[#1]",
		// 560
		"C:C:C:C", "C:C:C:N", "C:C:N:C", "C:N:C:N", "C:C:C-C",
		"C:C:C-N", "C:C:C-O", "C:C:C-Cl", "C:C:C-F", "C:C:C-[#1]",
		// 570
		"C:C-C:C", "C:C-N-[#1]", "C:C-O-C", "C:C-C-O", "C:C-C-N",
		"C:C-C-[#1]", "O=C-C-[#1]", "O=C-C=O", "O=N-C:C", "C-N=N-C",
		// 580
		"C=N-O-[#1]", "C-C=N-O", "C-C=N-N", "Cl-C-C-O", "O-C-C=C",
		"S-C-C-N", "S-C-C-O", "C-S-S-C", "O=C-S-C", "P-O-C-C",
		// 590
		"O=P-O-C", "O=P-O-[#1]", "N:C-N-[#1]", "C-C=C-[#1]", "[#1]-C:C-[#1]",
		"[#1]-C:C-C", "C:N:C-[#1]", "N:C-C-C", "C#C-C:C", "C=C-C=C",
		// 600
		"Cl-C-C=O", "Br-C:C-C", "N-C:C-C", "O=C-C-C=O", "C-C-C-C-C",
		"O-C-C-C-O", "N-C-C-C-N", "O=C-C-C-C", "O=C-C-C-N", "O=C-C-C-O",
		// 610
		"O=C-C=C-C", "O=C-N-C=O", "O=C-N-C-C", "O=C-O-C-C", "O=C-C-N-C",
		"O=C-C-O-C", "C-C-C-C=C", "C=C-C=C-C", "C=C-C-C=C", "C:C-C-C-C",
		// 620
		"C:C-C-C-N", "C:C-C-C-O", "C:C-C-C=O", "C:C-C-N-C", "C:C-C-O-C",
		"C:C-C=C-C", "C:C-C=N-N", "C:C-N-C=O", "C:C-O-C-C", "C:C-O-C=O",
		// 630
		"C:C-N-C-C", "C:C:C:C:C", "C:C:C:C-C", "C:C:C:C-N", "C:C:C:C-O",
		"C:C:C:C-Cl", "C:C:C:N:C", "C:C:N:C:N", "N:C:C:C:N", "C:C:C-C=O",
		// 640
		"C:C:C-C-C", "C:C:C-N-C", "C:C:C-O-C", "C:C:C-O-[#1]", "C:C:C-N-[#1]",
		"N-C-C-C-C", "O-C-C-C-C", "C-O-C-C-O", "C-N-C-C-O", "C-C-N-C-C",
		// 650
		"C-C-O-C-C", "C-C-S-C-C", "Cl-C-C-C-C", "Br-C-C-C-C", "N#C-C:C:C",
		"O=C-N-C-N", "C-O-C-O-C", "N-C-N-C-N", "C-C-C=C-C", "C-S-C-C-C",
		// 660
		"C-N-C-C-C", "C=C-C-C-O", "[#1]-N-C-C-C", "C-C-C-C-C-C", "C:C:C:C:C:C",
		"C:C:C:C:C-C", "O=C-C-C-C=O", "O=C-C-C-C-C", "O=C-C-C-C-N", "O=C-C-C-C-O",
		// 670
		"O=C-C=C-C=O", "O-C-C-C-C-O", "N-C-C-C-C-N", "C=C-C=C-C=C", "C=C-C-C-C=C",
		"C:C-C-C-C-C", "C:C-C-C-C:C", "C:C-C-N-C:C", "C:C-C-O-C:C", "C:C-O-C-C-O",
		// 680
		"C:C-N-C-C-N", "C-C-C-C-C(C)-C", "C-C-C-C(C)-C-C", "C-C-C(C)-C(C)-C-C", "C-C-C(=O)-C-C-C",
		"C:C:C:C-C=O", "N-C:C:C:C-C", "C-N-C-C-C-C", "C-O-C-C-O-C", "C-C-O-C-C-C",
		// 690
		"O=C-C-N-C=O", "C-C(C)-C-C-C(C)-C", "C-C-C-C-C(=O)-O", "C-C-C-C-C-C-C", "C-C-C-C-C-C(C)-C",
		"C-C-C-C-C(C)-C-C", "C-C-C-C(C)-C-C-C", "O=C-C-C-C-C=O", "O-C-C-C-C-C-O", "N-C-C-C-C-C-N",
		// 700
		"C:C-C-C-C-C:C", "C:C:C:C:C:C-C", "C:C-C-C-C-C-C", "O-C-C-C-C-C-C", "N-C-C-C-C-C-C",
		"C-C-C-C-C-C(=O)-O", "C=C-C=C-C=C-C", "C-C-C-C-C-C-C-C", "C-C-C-C-C-C(C)-C-C", "C-C-C-C-C(C)-C-C-C",
		// 710
		"C-C-C-C-C-C-C(C)-C", "O-C-C-C-C-C-C-O", "N-C-C-C-C-C-C-N",
	}},
}

func TestCatalogue_PublishedOrder(t *testing.T) {
	for _, want := range publishedOrder {
		first, last := want.section.Range()
		require.Len(t, want.names, last-first+1, want.section.String())
		for i, name := range want.names {
			k, err := KeyAt(first + i)
			require.NoError(t, err)
			assert.Equal(t, name, k.Name, "bit %d", first+i)
			assert.Equal(t, want.section, k.Section, "bit %d", first+i)
		}
	}
}
